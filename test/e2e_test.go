// Package e2e exercises the scenarios spec.md §8 describes end to end:
// a service published through a real servicemanager.Server, looked up
// through servicemanager.Client, and invoked through the generic transact
// protocol, all driven in-process against localbinder/proxy-shaped objects
// rather than a live /dev/binder.
package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/localbinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/servicemanager"
)

const incrDescriptor = "vela.IIncrementer"

// incrementerImpl answers transaction FirstCallTransaction+0 by reading an
// int32 and writing back its successor, per spec.md §8 scenario E2.
type incrementerImpl struct{}

func (incrementerImpl) Descriptor() string { return incrDescriptor }

func (incrementerImpl) Dispatch(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	if code != ibinder.FirstCallTransaction {
		return status.UnknownTransaction
	}
	in, ok := data.(*parcel.Parcel)
	if !ok {
		return status.BadValue
	}
	out, ok := reply.(*parcel.Parcel)
	if !ok {
		return status.BadValue
	}
	x, st := in.ReadInt32()
	if st != status.OK {
		return st
	}
	return out.WriteInt32(x + 1)
}

// TestRegisterAndLookupService covers spec.md §8 scenario E1: publish a
// service, look it up from another handle, and confirm identity survives.
func TestRegisterAndLookupService(t *testing.T) {
	server := servicemanager.NewServer()
	registrant := servicemanager.New(server)

	svc := localbinder.New(incrementerImpl{})
	require.Equal(t, status.OK, registrant.AddService("echo", svc, false, 0))

	looker := servicemanager.New(server)
	found, st := looker.GetService("echo")
	require.Equal(t, status.OK, st)
	require.NotNil(t, found)

	assert.Equal(t, status.OK, found.PingBinder())
	assert.Equal(t, incrDescriptor, found.Descriptor())
}

// TestPrimitiveTransact covers spec.md §8 scenario E2.
func TestPrimitiveTransact(t *testing.T) {
	svc := localbinder.New(incrementerImpl{})

	data := parcel.New()
	require.Equal(t, status.OK, data.WriteInt32(41))

	reply := parcel.New()
	st := svc.Transact(ibinder.FirstCallTransaction, data, reply, 0)
	require.Equal(t, status.OK, st)

	reply.SetDataPosition(0)
	got, st := reply.ReadInt32()
	require.Equal(t, status.OK, st)
	assert.Equal(t, int32(42), got)
}

// TestStringWithNullRoundTrip covers spec.md §8 scenario E3.
func TestStringWithNullRoundTrip(t *testing.T) {
	p := parcel.New()
	require.Equal(t, status.OK, p.WriteString("Vela.os.IServiceManager"))
	require.Equal(t, status.OK, p.WriteNullableString(nil))

	p.SetDataPosition(0)
	first, st := p.ReadString()
	require.Equal(t, status.OK, st)
	assert.Equal(t, "Vela.os.IServiceManager", first)

	second, st := p.ReadString()
	require.Equal(t, status.OK, st)
	assert.Equal(t, "", second)

	assert.Equal(t, p.DataSize(), p.DataPosition(), "no bytes should remain beyond padding")
}

// TestOnewayDropStillDispatches covers spec.md §8 scenario E5: a oneway
// transact must not block on the handler's completion (here that's trivially
// true, since localbinder dispatches synchronously), but it must return OK
// without requiring a reply parcel, and the handler must still have run.
func TestOnewayDropStillDispatches(t *testing.T) {
	var ran bool
	impl := recordingImpl{descriptor: "vela.IRecorder", onDispatch: func() { ran = true }}
	svc := localbinder.New(impl)

	data := parcel.New()
	st := svc.Transact(ibinder.FirstCallTransaction, data, nil, ibinder.FlagOneway)
	require.Equal(t, status.OK, st)
	assert.True(t, ran, "oneway dispatch must still reach the handler")
}

type recordingImpl struct {
	descriptor string
	onDispatch func()
}

func (r recordingImpl) Descriptor() string { return r.descriptor }
func (r recordingImpl) Dispatch(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	r.onDispatch()
	return status.OK
}

// TestInvalidServiceName covers spec.md §8 scenario E6.
func TestInvalidServiceName(t *testing.T) {
	server := servicemanager.NewServer()
	client := servicemanager.New(server)
	svc := localbinder.New(incrementerImpl{})

	assert.Equal(t, status.BadValue, client.AddService("bad name", svc, false, 0))
	assert.Equal(t, status.OK, client.AddService("ok.name-1/sub", svc, false, 0))
}
