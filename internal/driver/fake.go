package driver

import (
	"sync"

	"github.com/vela-os/binder/internal/uapi"
)

// FakeConn is an in-memory Conn used by tests that need a process state or
// thread state loop without a real binder device. Callers queue driver
// return-command bytes with QueueRead and inspect what was written with
// Written.
type FakeConn struct {
	mu           sync.Mutex
	pendingReads [][]byte
	written      [][]byte
	maxThreads   uint32
	contextMgr   *uapi.FlatBinderObject
	version      int32
	mmapRegion   []byte
	closed       bool
}

// NewFake returns a FakeConn reporting the given protocol version.
func NewFake(version int32) *FakeConn {
	return &FakeConn{version: version}
}

// QueueRead appends a chunk of driver-return bytes that the next WriteRead
// calls will hand back, in FIFO order, as room in the caller's read buffer
// allows.
func (f *FakeConn) QueueRead(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingReads = append(f.pendingReads, append([]byte(nil), b...))
}

// Written returns every write buffer handed to WriteRead so far.
func (f *FakeConn) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *FakeConn) WriteRead(write []byte, read []byte) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(write) > 0 {
		f.written = append(f.written, append([]byte(nil), write...))
	}

	produced := 0
	for len(f.pendingReads) > 0 && produced < len(read) {
		chunk := f.pendingReads[0]
		n := copy(read[produced:], chunk)
		produced += n
		if n == len(chunk) {
			f.pendingReads = f.pendingReads[1:]
		} else {
			f.pendingReads[0] = chunk[n:]
		}
	}
	return len(write), produced, nil
}

func (f *FakeConn) SetMaxThreads(n uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxThreads = n
	return nil
}

func (f *FakeConn) SetContextMgr(obj *uapi.FlatBinderObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contextMgr = obj
	return nil
}

func (f *FakeConn) Version() (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, nil
}

func (f *FakeConn) Mmap(size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mmapRegion = make([]byte, size)
	return f.mmapRegion, nil
}

func (f *FakeConn) Munmap(region []byte) error {
	return nil
}

func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called, for test assertions.
func (f *FakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
