// Package driver abstracts the binder character device: opening it,
// mapping its receive buffer, and exchanging binder_write_read ioctls with
// it. Conn is the seam between the rest of the runtime and the kernel, kept
// small enough that tests can swap in an in-memory fake instead of a real
// device.
package driver

import (
	"errors"

	"github.com/vela-os/binder/internal/uapi"
)

// ErrNoData reports a WriteRead in which neither the write nor the read made
// any progress. WriteRead takes no timeout, and neither the fake nor the
// Linux Conn in this package returns it.
var ErrNoData = errors.New("driver: no data available")

// Conn is the transport surface internal/procstate and internal/threadstate
// need from the binder device. A real Conn wraps an open file descriptor to
// /dev/binder (or the path named by BINDER_DRIVER); a fake Conn used in
// tests answers ioctls from an in-memory queue.
type Conn interface {
	// WriteRead performs one BINDER_WRITE_READ ioctl, writing write and
	// filling as much of read as the driver has ready. It returns the
	// number of bytes consumed from write and produced into read.
	WriteRead(write []byte, read []byte) (consumed int, produced int, err error)

	// SetMaxThreads announces the thread pool ceiling via BINDER_SET_MAX_THREADS.
	SetMaxThreads(n uint32) error

	// SetContextMgr registers the calling thread as the context manager via
	// BINDER_SET_CONTEXT_MGR, or BINDER_SET_CONTEXT_MGR_EXT with obj as the
	// flat object when obj is non-nil.
	SetContextMgr(obj *uapi.FlatBinderObject) error

	// Version returns the driver's protocol version via BINDER_VERSION.
	Version() (int32, error)

	// Mmap maps size bytes of the driver's transaction buffer read-only
	// into this process and returns the mapping.
	Mmap(size int) ([]byte, error)

	// Munmap releases a mapping returned by Mmap.
	Munmap(region []byte) error

	// Close releases the underlying file descriptor.
	Close() error
}

// Config configures a real Conn.
type Config struct {
	// Path is the device node to open; defaults to /dev/binder.
	Path string
}
