package parcel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/status"
)

// TestPaddingLaw checks that the data size after any sequence of writes is a
// multiple of 4, regardless of which primitives were mixed in.
func TestPaddingLaw(t *testing.T) {
	p := New()

	require.Equal(t, status.OK, p.WriteByte(7))
	assert.Equal(t, 0, p.DataSize()%4)

	require.Equal(t, status.OK, p.WriteBool(true))
	assert.Equal(t, 0, p.DataSize()%4)

	require.Equal(t, status.OK, p.WriteString("hi"))
	assert.Equal(t, 0, p.DataSize()%4)

	require.Equal(t, status.OK, p.WriteString(""))
	assert.Equal(t, 0, p.DataSize()%4)

	require.Equal(t, status.OK, p.WriteInt64(1))
	assert.Equal(t, 0, p.DataSize()%4)
}

// TestObjectOffsetIndex checks that an embedded object's recorded offset
// always lands on a 4-byte boundary, the precondition the driver's
// offsets array requires.
func TestObjectOffsetIndex(t *testing.T) {
	p := New()
	require.Equal(t, status.OK, p.WriteInt32(1))
	require.Equal(t, status.OK, p.WriteString("svc"))
	require.Equal(t, status.OK, p.WriteStrongBinder(nil))

	offs := p.Objects()
	require.Len(t, offs, 0, "a nil target is not recorded in the object index")

	mock := &fakeBinder{}
	require.Equal(t, status.OK, p.WriteStrongBinder(mock))

	offs = p.Objects()
	require.Len(t, offs, 1)
	assert.Equal(t, uint64(0), offs[0]%4, "embedded object offset must be 4-byte aligned")
}

// fakeBinder is the minimal ibinder.Binder stand-in this package's tests
// need to exercise WriteStrongBinder without pulling in internal/localbinder
// or internal/proxy (both of which import this package, so either would be
// a cycle).
type fakeBinder struct{ incs int }

func (f *fakeBinder) IncStrong() { f.incs++ }
func (f *fakeBinder) Transact(uint32, ibinder.Parcel, ibinder.Parcel, ibinder.TransactionFlags) status.Status {
	return status.OK
}
func (f *fakeBinder) LinkToDeath(ibinder.DeathRecipient, any, uint32) status.Status { return status.OK }
func (f *fakeBinder) UnlinkToDeath(ibinder.DeathRecipient, any, uint32) (bool, status.Status) {
	return true, status.OK
}
func (f *fakeBinder) AttachObject(any, any, any, func(key, object, cookie any)) {}
func (f *fakeBinder) FindObject(any) any                                       { return nil }
func (f *fakeBinder) DetachObject(any) any                                     { return nil }
func (f *fakeBinder) LocalBinder() ibinder.LocalBinder                         { return nil }
func (f *fakeBinder) RemoteBinder() ibinder.RemoteBinder                       { return nil }
func (f *fakeBinder) Descriptor() string                                       { return "fake" }
func (f *fakeBinder) PingBinder() status.Status                                { return status.OK }
