// Package threadstate implements the per-OS-thread binder command loop: the
// write_buffer/read_buffer protocol exchanged with the driver via
// BINDER_WRITE_READ, transaction dispatch to local objects, and the
// thread-pool join loop a server process runs on its worker threads.
package threadstate

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/logging"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/procstate"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/uapi"
)

// readChunk is the size of each BINDER_WRITE_READ read_buffer request;
// talkWithDriver allocates a fresh buffer of this size for every exchange.
const readChunk = 8 * 1024

// localRegistry maps the pointer-sized token a local object is flattened
// with to the object itself, so an incoming BR_TRANSACTION can find its
// target. internal/localbinder populates it when a stub is constructed.
var (
	localMu       sync.RWMutex
	localRegistry = make(map[uint64]ibinder.LocalBinder)
)

// RegisterLocal installs obj under token, the same pointer value written
// into the flat_binder_object.binder field when this object is sent to
// another process.
func RegisterLocal(token uint64, obj ibinder.LocalBinder) {
	localMu.Lock()
	defer localMu.Unlock()
	localRegistry[token] = obj
}

// UnregisterLocal removes a token installed by RegisterLocal.
func UnregisterLocal(token uint64) {
	localMu.Lock()
	defer localMu.Unlock()
	delete(localRegistry, token)
}

func lookupLocal(token uint64) (ibinder.LocalBinder, bool) {
	localMu.RLock()
	defer localMu.RUnlock()
	obj, ok := localRegistry[token]
	return obj, ok
}

// ThreadState holds the outbound command buffer and inbound read cursor used
// to talk to the driver. Callers obtain one with Current, which keeps a
// single instance per procstate.State and hands it to every goroutine; it is
// not bound to a goroutine or an OS thread.
type ThreadState struct {
	proc   *procstate.State
	out    *cmdWriter
	in     *cmdReader
	logger *logging.Logger
}

var tlsMu sync.Mutex
var tls = make(map[*procstate.State]*ThreadState) // simplified: one per process in this runtime

func init() {
	procstate.RegisterThreadSpawner(func(s *procstate.State) {
		Current(s).JoinThreadPool(false)
	})
}

// Current returns the ThreadState for proc, creating it on first use. The
// runtime does not pin goroutines to OS threads the way a native binder
// client does; callers that need the driver's per-thread transaction
// nesting guarantee must serialize their own use of a ThreadState.
func Current(proc *procstate.State) *ThreadState {
	tlsMu.Lock()
	defer tlsMu.Unlock()
	if t, ok := tls[proc]; ok {
		return t
	}
	t := &ThreadState{
		proc:   proc,
		out:    newCmdWriter(),
		in:     newCmdReader(nil),
		logger: logging.Default(),
	}
	tls[proc] = t
	return t
}

// cmdWriter accumulates BC_* commands and their payloads before a flush.
type cmdWriter struct{ buf []byte }

func newCmdWriter() *cmdWriter { return &cmdWriter{buf: make([]byte, 0, 256)} }

func (w *cmdWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *cmdWriter) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *cmdWriter) putBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *cmdWriter) reset() { w.buf = w.buf[:0] }

// cmdReader walks command/payload pairs out of a read_buffer.
type cmdReader struct {
	buf []byte
	pos int
}

func newCmdReader(buf []byte) *cmdReader { return &cmdReader{buf: buf} }

func (r *cmdReader) remaining() int { return len(r.buf) - r.pos }

func (r *cmdReader) readUint32() (uint32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, true
}

func (r *cmdReader) readUint64() (uint64, bool) {
	if r.remaining() < 8 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, true
}

func (r *cmdReader) readBytes(n int) ([]byte, bool) {
	if r.remaining() < n {
		return nil, false
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

// Transact sends a transaction to handle and, unless flags carries
// FlagOneway, blocks until a reply or error arrives.
func (t *ThreadState) Transact(handle uint32, code uint32, data *parcel.Parcel, reply *parcel.Parcel, flags ibinder.TransactionFlags) status.Status {
	t.writeTransaction(uapi.BCTransaction, handle, 0, code, data, flags)

	if flags&ibinder.FlagOneway != 0 {
		return t.flush()
	}
	return t.waitForResponse(reply)
}

// AcquireHandle and ReleaseHandle tell the driver this process has started
// or stopped holding a strong reference to the remote object behind handle,
// via BC_ACQUIRE/BC_RELEASE. Unlike Transact these never reach the remote
// object's OnTransact; the driver answers them itself.
func (t *ThreadState) AcquireHandle(handle uint32) status.Status {
	t.out.putUint32(uapi.BCAcquire)
	t.out.putUint32(handle)
	return t.flush()
}

func (t *ThreadState) ReleaseHandle(handle uint32) status.Status {
	t.out.putUint32(uapi.BCRelease)
	t.out.putUint32(handle)
	return t.flush()
}

// RequestDeathNotification and ClearDeathNotification tell the driver to
// start or stop watching handle for death, via BC_REQUEST_DEATH_NOTIFICATION/
// BC_CLEAR_DEATH_NOTIFICATION. cookie is the value the driver echoes back
// unchanged in the matching BR_DEAD_BINDER/BR_CLEAR_DEATH_NOTIFICATION_DONE,
// internal/proxy's key into RegisterDeathCallback.
func (t *ThreadState) RequestDeathNotification(handle uint32, cookie uint64) status.Status {
	t.out.putUint32(uapi.BCRequestDeathNotification)
	t.out.putUint32(handle)
	t.out.putUint64(cookie)
	return t.flush()
}

func (t *ThreadState) ClearDeathNotification(handle uint32, cookie uint64) status.Status {
	t.out.putUint32(uapi.BCClearDeathNotification)
	t.out.putUint32(handle)
	t.out.putUint64(cookie)
	return t.flush()
}

// sendReply answers an in-flight incoming transaction with either a parcel
// or a bare status code.
func (t *ThreadState) sendReply(reply *parcel.Parcel, result status.Status) status.Status {
	if result != status.OK {
		p := parcel.New()
		p.WriteInt32(int32(result))
		t.writeTransaction(uapi.BCReply, 0, 0, 0, p, ibinder.FlagStatusCode)
	} else {
		t.writeTransaction(uapi.BCReply, 0, 0, 0, reply, 0)
	}
	return t.flush()
}

func (t *ThreadState) writeTransaction(bcCode uint32, handle uint32, cookie uint64, code uint32, data *parcel.Parcel, flags ibinder.TransactionFlags) {
	var body []byte
	var dataSize, offsetsSize uint64
	if data != nil {
		body = data.Bytes()
		dataSize = uint64(len(body))
		offsetsSize = uint64(len(data.Objects()) * 8)
	}

	td := uapi.BinderTransactionData{
		Cookie:      cookie,
		Code:        code,
		Flags:       uint32(flags),
		DataSize:    dataSize,
		OffsetsSize: offsetsSize,
	}
	if bcCode == uapi.BCTransaction {
		td.SetTargetHandle(handle)
	}
	if len(body) > 0 {
		td.PtrBuffer = uint64(uintptr(unsafe.Pointer(&body[0])))
	}
	if offsetsSize > 0 {
		offsBytes := uint64SliceBytes(data.Objects())
		td.PtrOffsets = uint64(uintptr(unsafe.Pointer(&offsBytes[0])))
	}

	t.out.putUint32(bcCode)
	t.out.putBytes(uapi.Marshal(&td))
}

func (t *ThreadState) flush() status.Status {
	if len(t.out.buf) == 0 {
		return status.OK
	}
	read := make([]byte, 0)
	_, _, err := t.proc.Conn().WriteRead(t.out.buf, read)
	t.out.reset()
	if err != nil {
		return status.DeadObject
	}
	return status.OK
}

// talkWithDriver exchanges pending commands for driver responses, replacing
// the read cursor with the newly read bytes.
func (t *ThreadState) talkWithDriver() status.Status {
	read := make([]byte, readChunk)
	_, produced, err := t.proc.Conn().WriteRead(t.out.buf, read)
	t.out.reset()
	if err != nil {
		return status.DeadObject
	}
	t.in = newCmdReader(read[:produced])
	return status.OK
}

// waitForResponse drains driver responses until the transaction reply (or
// a terminal error) arrives, dispatching any interleaved incoming
// transactions (e.g. a nested callback) to their local targets.
func (t *ThreadState) waitForResponse(reply *parcel.Parcel) status.Status {
	for {
		if t.in.remaining() == 0 {
			if s := t.talkWithDriver(); s != status.OK {
				return s
			}
			continue
		}
		cmd, ok := t.in.readUint32()
		if !ok {
			continue
		}
		done, result, s := t.executeCommand(cmd, reply)
		if s != status.OK {
			return s
		}
		if done {
			return result
		}
	}
}

// executeCommand processes one BR_* response. done is true once the caller
// of waitForResponse should stop looping (a reply or terminal error for
// this call arrived); result is only meaningful when done is true.
func (t *ThreadState) executeCommand(cmd uint32, reply *parcel.Parcel) (done bool, result status.Status, err status.Status) {
	switch cmd {
	case uapi.BRNoop:
		return false, status.OK, status.OK

	case uapi.BRTransactionComplete:
		return false, status.OK, status.OK

	case uapi.BRDeadReply:
		return true, status.DeadObject, status.OK

	case uapi.BRFailedReply:
		return true, status.FailedTransaction, status.OK

	case uapi.BRFrozenReply:
		return true, status.FailedTransaction, status.OK

	case uapi.BRReply:
		buf, ok := t.in.readBytes(64)
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		var td uapi.BinderTransactionData
		if uerr := uapi.Unmarshal(buf, &td); uerr != nil {
			return true, status.UnknownError, status.UnknownError
		}
		payload, ok := t.in.readBytes(int(td.DataSize))
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		if td.Flags&uapi.TransactionStatusCodeFlag != 0 {
			if len(payload) >= 4 {
				code := int32(binary.LittleEndian.Uint32(payload))
				return true, status.Status(code), status.OK
			}
			return true, status.UnknownError, status.OK
		}
		offsets, ok := t.in.readBytes(int(td.OffsetsSize))
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		if reply != nil {
			fillReply(reply, payload)
			if len(offsets) > 0 {
				reply.AttachUnflattenedObjects(t.resolveObjects(payload, offsets))
			}
		}
		return true, status.OK, status.OK

	case uapi.BRTransaction:
		buf, ok := t.in.readBytes(64)
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		var td uapi.BinderTransactionData
		if uerr := uapi.Unmarshal(buf, &td); uerr != nil {
			return true, status.UnknownError, status.UnknownError
		}
		payload, ok := t.in.readBytes(int(td.DataSize))
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		offsets, ok := t.in.readBytes(int(td.OffsetsSize))
		if !ok {
			return true, status.UnknownError, status.NotEnoughData
		}
		t.dispatchIncoming(&td, payload, offsets)
		return false, status.OK, status.OK

	case uapi.BRIncrefs, uapi.BRAcquire, uapi.BRRelease, uapi.BRDecrefs:
		// ptr + cookie, 16 bytes. BR_INCREFS and BR_ACQUIRE are acked with a
		// zeroed ptr/cookie payload; BR_RELEASE and BR_DECREFS are consumed
		// with no further action, since local objects are kept alive by Go's GC.
		t.in.readBytes(16)
		if cmd == uapi.BRIncrefs || cmd == uapi.BRAcquire {
			t.out.putUint32(ackFor(cmd))
			t.out.putBytes(make([]byte, 16))
		}
		return false, status.OK, status.OK

	case uapi.BRSpawnLooper:
		t.proc.StartThreadPool()
		return false, status.OK, status.OK

	case uapi.BRFinished:
		return true, status.OK, status.OK

	case uapi.BRDeadBinder:
		cookie, _ := t.in.readUint64()
		notifyDeath(cookie)
		t.out.putUint32(uapi.BCDeadBinderDone)
		t.out.putBytes(u64Bytes(cookie))
		return false, status.OK, status.OK

	case uapi.BRClearDeathNotificationDone:
		t.in.readUint64()
		return false, status.OK, status.OK

	case uapi.BROnewaySpamSuspect:
		t.logger.Warn("oneway transaction queue backing up")
		return false, status.OK, status.OK

	case uapi.BRError:
		code, _ := t.in.readUint32()
		return true, status.Status(int32(code)), status.OK

	default:
		return true, status.UnknownError, status.UnknownTransaction
	}
}

func ackFor(cmd uint32) uint32 {
	if cmd == uapi.BRIncrefs {
		return uapi.BCIncrefsDone
	}
	return uapi.BCAcquireDone
}

// resolveObjects turns a transaction's raw offsets array into the object
// index parcel.AttachUnflattenedObjects expects, resolving each embedded
// flat_binder_object found at those offsets in payload: a handle resolves to
// (or mints) this process's proxy for it via procstate, while a local token
// resolves through the same registry dispatchIncoming itself looks the
// transaction target up in.
func (t *ThreadState) resolveObjects(payload []byte, offsets []byte) []parcel.ObjectAt {
	n := len(offsets) / 8
	objs := make([]parcel.ObjectAt, 0, n)
	for i := 0; i < n; i++ {
		off := binary.LittleEndian.Uint64(offsets[i*8 : i*8+8])
		if off+24 > uint64(len(payload)) {
			continue
		}
		var flat uapi.FlatBinderObject
		if uapi.Unmarshal(payload[off:off+24], &flat) != nil {
			continue
		}

		var target ibinder.Binder
		switch flat.Type {
		case uapi.BinderTypeHandle, uapi.BinderTypeWeakHandle:
			if b, st := t.proc.GetStrongProxyForHandle(flat.Handle()); st == status.OK {
				target = b
			}
		case uapi.BinderTypeBinder, uapi.BinderTypeWeakBinder:
			if local, ok := lookupLocal(flat.Binder); ok {
				target = local
			}
		}
		if target != nil {
			objs = append(objs, parcel.ObjectAt{Offset: off, Target: target})
		}
	}
	return objs
}

// dispatchIncoming looks up the local object named by the transaction's
// target pointer and runs its OnTransact, replying with whatever it
// produces (never for a oneway call).
func (t *ThreadState) dispatchIncoming(td *uapi.BinderTransactionData, payload []byte, offsets []byte) {
	obj, ok := lookupLocal(td.Target)
	data := parcel.New()
	if len(payload) > 0 {
		data.WriteBytesRaw(payload)
		if len(offsets) > 0 {
			data.AttachUnflattenedObjects(t.resolveObjects(payload, offsets))
		}
		data.SetDataPosition(0)
	}

	oneway := td.Flags&uint32(ibinder.FlagOneway) != 0

	if td.PtrBuffer != 0 {
		t.queueFreeBuffer(td.PtrBuffer)
	}

	if !ok {
		if !oneway {
			t.sendReply(nil, status.DeadObject)
		}
		return
	}

	reply := parcel.New()
	result := obj.OnTransact(td.Code, data, reply, ibinder.TransactionFlags(td.Flags))
	if !oneway {
		t.sendReply(reply, result)
	}
}

// queueFreeBuffer records a kernel-owned transaction buffer to be released
// with BC_FREE_BUFFER the next time commands are written to the driver,
// batching the release with whatever this thread sends next instead of an
// extra round trip per transaction.
func (t *ThreadState) queueFreeBuffer(ptr uint64) {
	t.out.putUint32(uapi.BCFreeBuffer)
	t.out.putBytes(u64Bytes(ptr))
}

// JoinThreadPool enters the driver's pool loop: BC_ENTER_LOOPER (or
// BC_REGISTER_LOOPER when isMain is false) once, then
// repeated talkWithDriver/executeCommand cycles until BR_FINISHED or a fatal
// error.
func (t *ThreadState) JoinThreadPool(isMain bool) status.Status {
	if isMain {
		t.out.putUint32(uapi.BCEnterLooper)
	} else {
		t.out.putUint32(uapi.BCRegisterLooper)
	}

	for {
		if t.in.remaining() == 0 {
			if s := t.talkWithDriver(); s != status.OK {
				return s
			}
			continue
		}
		cmd, ok := t.in.readUint32()
		if !ok {
			continue
		}
		done, _, s := t.executeCommand(cmd, nil)
		if s != status.OK {
			return s
		}
		if done {
			return status.OK
		}
	}
}

// SetupPolling marks this thread as a looper without blocking, for a caller
// that wants to drive its own event loop instead of calling JoinThreadPool.
// It issues BC_ENTER_LOOPER so the driver knows this thread is ready to
// receive work, then returns: the actual read/dispatch cycle happens in
// repeated HandlePolledCommands calls.
func (t *ThreadState) SetupPolling() status.Status {
	t.out.putUint32(uapi.BCEnterLooper)
	return t.flush()
}

// HandlePolledCommands drains whatever the driver currently has ready and
// dispatches it, the way a single iteration of an external event loop calls
// back into IPCThreadState once its own poll() wakes it. It blocks for at
// most one driver round trip; callers loop it themselves.
func (t *ThreadState) HandlePolledCommands() status.Status {
	if t.in.remaining() == 0 {
		if s := t.talkWithDriver(); s != status.OK {
			return s
		}
	}
	for t.in.remaining() > 0 {
		cmd, ok := t.in.readUint32()
		if !ok {
			break
		}
		if _, _, s := t.executeCommand(cmd, nil); s != status.OK {
			return s
		}
	}
	return t.flush()
}

var deathMu sync.Mutex
var deathCallbacks = make(map[uint64]func())

// RegisterDeathCallback arranges for fn to run when BR_DEAD_BINDER arrives
// for cookie; internal/proxy calls this from LinkToDeath.
func RegisterDeathCallback(cookie uint64, fn func()) {
	deathMu.Lock()
	defer deathMu.Unlock()
	deathCallbacks[cookie] = fn
}

// UnregisterDeathCallback removes a callback installed by
// RegisterDeathCallback, called from UnlinkToDeath.
func UnregisterDeathCallback(cookie uint64) {
	deathMu.Lock()
	defer deathMu.Unlock()
	delete(deathCallbacks, cookie)
}

func notifyDeath(cookie uint64) {
	deathMu.Lock()
	fn := deathCallbacks[cookie]
	deathMu.Unlock()
	if fn != nil {
		fn()
	}
}

func fillReply(p *parcel.Parcel, payload []byte) {
	p.WriteBytesRaw(payload)
	p.SetDataPosition(0)
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func uint64SliceBytes(vs []uint64) []byte {
	b := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	return b
}

