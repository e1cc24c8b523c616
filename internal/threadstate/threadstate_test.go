package threadstate

import (
	"encoding/binary"
	"testing"

	"github.com/vela-os/binder/internal/driver"
	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/procstate"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/uapi"
)

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func TestTransactSuccessReply(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	ts := &ThreadState{out: newCmdWriter(), in: newCmdReader(nil)}
	ts.proc = mustProc(t, fake)

	replyPayload := []byte("hi")
	td := uapi.BinderTransactionData{DataSize: uint64(len(replyPayload))}
	frame := append(u32le(uapi.BRReply), uapi.Marshal(&td)...)
	frame = append(frame, replyPayload...)
	fake.QueueRead(frame)

	reply := parcel.New()
	s := ts.Transact(1, 42, parcel.New(), reply, 0)
	if s != status.OK {
		t.Fatalf("Transact = %v, want OK", s)
	}
	if string(reply.Bytes()) != "hi" {
		t.Fatalf("reply = %q, want %q", reply.Bytes(), "hi")
	}
}

func TestTransactDeadReply(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	ts := &ThreadState{out: newCmdWriter(), in: newCmdReader(nil)}
	ts.proc = mustProc(t, fake)

	fake.QueueRead(u32le(uapi.BRDeadReply))

	s := ts.Transact(1, 42, parcel.New(), parcel.New(), 0)
	if s != status.DeadObject {
		t.Fatalf("Transact = %v, want DeadObject", s)
	}
}

type echoLocal struct {
	ibinder.LocalBinder
	called bool
}

func (e *echoLocal) OnTransact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	e.called = true
	p := data.(*parcel.Parcel)
	r := reply.(*parcel.Parcel)
	r.WriteBytesRaw(p.Bytes())
	return status.OK
}

func TestDispatchIncomingInvokesLocalObject(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	ts := &ThreadState{out: newCmdWriter(), in: newCmdReader(nil)}
	ts.proc = mustProc(t, fake)

	local := &echoLocal{}
	RegisterLocal(0x1234, local)
	defer UnregisterLocal(0x1234)

	payload := []byte("ping")
	td := uapi.BinderTransactionData{Target: 0x1234, DataSize: uint64(len(payload)), Flags: uint32(ibinder.FlagOneway)}
	ts.dispatchIncoming(&td, payload, nil)

	if !local.called {
		t.Fatal("dispatchIncoming should have invoked the registered local object")
	}
	if len(ts.out.buf) != 0 {
		t.Fatalf("oneway dispatch should not reply, wrote %d bytes", len(ts.out.buf))
	}
}

func TestSetupPollingEntersLooper(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	ts := &ThreadState{out: newCmdWriter(), in: newCmdReader(nil)}
	ts.proc = mustProc(t, fake)

	if s := ts.SetupPolling(); s != status.OK {
		t.Fatalf("SetupPolling = %v, want OK", s)
	}

	found := false
	for _, w := range fake.Written() {
		if len(w) >= 4 && binary.LittleEndian.Uint32(w[:4]) == uapi.BCEnterLooper {
			found = true
		}
	}
	if !found {
		t.Fatal("SetupPolling should have written BC_ENTER_LOOPER")
	}
}

func TestHandlePolledCommandsProcessesOneBatch(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	ts := &ThreadState{out: newCmdWriter(), in: newCmdReader(nil)}
	ts.proc = mustProc(t, fake)

	payload := []byte("ping")
	RegisterLocal(0x55, &echoLocal{})
	defer UnregisterLocal(0x55)

	td := uapi.BinderTransactionData{Target: 0x55, DataSize: uint64(len(payload)), Flags: uint32(ibinder.FlagOneway)}
	frame := append(u32le(uapi.BRTransaction), uapi.Marshal(&td)...)
	frame = append(frame, payload...)
	frame = append(frame, u32le(uapi.BRNoop)...)
	fake.QueueRead(frame)

	if s := ts.HandlePolledCommands(); s != status.OK {
		t.Fatalf("HandlePolledCommands = %v, want OK", s)
	}
}

func mustProc(t *testing.T, fake *driver.FakeConn) *procstate.State {
	t.Helper()
	s, err := procstate.NewForTesting(fake)
	if err != nil {
		t.Fatalf("NewForTesting: %v", err)
	}
	return s
}
