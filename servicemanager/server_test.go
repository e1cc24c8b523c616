package servicemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/localbinder"
	"github.com/vela-os/binder/internal/status"
)

type echoImpl struct{}

func (echoImpl) Descriptor() string { return "vela.IEcho" }
func (echoImpl) Dispatch(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	return status.OK
}

func newEchoService() ibinder.Binder {
	return localbinder.New(echoImpl{})
}

func TestAddServiceAndGetService(t *testing.T) {
	server := NewServer()
	client := New(server)

	svc := newEchoService()
	require.Equal(t, status.OK, client.AddService("echo", svc, false, 0))

	got, st := client.CheckService("echo")
	require.Equal(t, status.OK, st)
	require.NotNil(t, got)
	assert.Equal(t, "vela.IEcho", got.Descriptor())
}

func TestCheckServiceMissingReturnsNil(t *testing.T) {
	server := NewServer()
	client := New(server)

	got, st := client.CheckService("nope")
	require.Equal(t, status.OK, st)
	assert.Nil(t, got)
}

func TestAddServiceNameValidation(t *testing.T) {
	server := NewServer()
	client := New(server)
	svc := newEchoService()

	assert.Equal(t, status.BadValue, client.AddService("bad name", svc, false, 0))
	assert.Equal(t, status.OK, client.AddService("ok.name-1/sub", svc, false, 0))
}

func TestListServices(t *testing.T) {
	server := NewServer()
	client := New(server)

	require.Equal(t, status.OK, client.AddService("a", newEchoService(), false, 0))
	require.Equal(t, status.OK, client.AddService("b", newEchoService(), false, 0))

	names, st := client.ListServices(0)
	require.Equal(t, status.OK, st)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestIsDeclaredAndGetDeclaredInstances(t *testing.T) {
	server := NewServer()
	client := New(server)

	require.Equal(t, status.OK, client.AddService("echo1", newEchoService(), false, 0))

	declared, st := client.IsDeclared("echo1")
	require.Equal(t, status.OK, st)
	assert.True(t, declared)

	declared, st = client.IsDeclared("missing")
	require.Equal(t, status.OK, st)
	assert.False(t, declared)

	instances, st := client.GetDeclaredInstances("vela.IEcho")
	require.Equal(t, status.OK, st)
	assert.Contains(t, instances, "echo1")
}

func TestTryUnregisterService(t *testing.T) {
	server := NewServer()
	client := New(server)
	svc := newEchoService()
	other := newEchoService()

	require.Equal(t, status.OK, client.AddService("echo", svc, false, 0))

	ok, st := client.TryUnregisterService("echo", other)
	require.Equal(t, status.OK, st)
	assert.False(t, ok, "unregister with the wrong binder must fail")

	ok, st = client.TryUnregisterService("echo", svc)
	require.Equal(t, status.OK, st)
	assert.True(t, ok)

	got, _ := client.CheckService("echo")
	assert.Nil(t, got)
}

func TestGetServiceDebugInfo(t *testing.T) {
	server := NewServer()
	client := New(server)
	require.Equal(t, status.OK, client.AddService("echo", newEchoService(), false, 0))

	infos, st := client.GetServiceDebugInfo()
	require.Equal(t, status.OK, st)
	require.Len(t, infos, 1)
	assert.Equal(t, "echo", infos[0].Name)
	assert.NotEmpty(t, infos[0].RegistrationID, "addService should stamp a registration id")
}

func TestRegisterForNotificationsFiresOnExistingService(t *testing.T) {
	server := NewServer()
	client := New(server)
	require.Equal(t, status.OK, client.AddService("echo", newEchoService(), false, 0))

	resolved, st := client.WaitForService("echo")
	require.Equal(t, status.OK, st)
	require.NotNil(t, resolved)
	assert.Equal(t, "vela.IEcho", resolved.Descriptor())
}

func TestServerDescriptorIsWellKnown(t *testing.T) {
	server := NewServer()
	assert.Equal(t, "Vela.os.IServiceManager", server.Descriptor())
}
