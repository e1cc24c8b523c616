//go:build linux

package driver

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vela-os/binder/internal/uapi"
)

// realConn talks to an actual /dev/binder character device.
type realConn struct {
	file *os.File
	fd   uintptr
}

// Open opens the binder device node named by cfg.Path (or DefaultDriverPath
// if empty).
func Open(cfg Config) (Conn, error) {
	path := cfg.Path
	if path == "" {
		path = "/dev/binder"
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("driver: open %s: %w", path, err)
	}
	return &realConn{file: f, fd: f.Fd()}, nil
}

func (c *realConn) ioctl(req uint32, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.fd, uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (c *realConn) WriteRead(write []byte, read []byte) (int, int, error) {
	wr := uapi.BinderWriteRead{
		WriteSize: uint64(len(write)),
		ReadSize:  uint64(len(read)),
	}
	if len(write) > 0 {
		wr.WriteBuffer = uint64(uintptr(unsafe.Pointer(&write[0])))
	}
	if len(read) > 0 {
		wr.ReadBuffer = uint64(uintptr(unsafe.Pointer(&read[0])))
	}

	if err := c.ioctl(uapi.CmdWriteRead, uintptr(unsafe.Pointer(&wr))); err != nil {
		return int(wr.WriteConsumed), int(wr.ReadConsumed), err
	}
	return int(wr.WriteConsumed), int(wr.ReadConsumed), nil
}

func (c *realConn) SetMaxThreads(n uint32) error {
	return c.ioctl(uapi.CmdSetMaxThreads, uintptr(unsafe.Pointer(&n)))
}

func (c *realConn) SetContextMgr(obj *uapi.FlatBinderObject) error {
	if obj == nil {
		var zero int32
		return c.ioctl(uapi.CmdSetContextMgr, uintptr(unsafe.Pointer(&zero)))
	}
	return c.ioctl(uapi.CmdSetContextMgrExt, uintptr(unsafe.Pointer(obj)))
}

func (c *realConn) Version() (int32, error) {
	var v uapi.BinderVersionStruct
	if err := c.ioctl(uapi.CmdVersion, uintptr(unsafe.Pointer(&v))); err != nil {
		return 0, err
	}
	return v.ProtocolVersion, nil
}

func (c *realConn) Mmap(size int) ([]byte, error) {
	region, err := unix.Mmap(int(c.fd), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("driver: mmap: %w", err)
	}
	return region, nil
}

func (c *realConn) Munmap(region []byte) error {
	return unix.Munmap(region)
}

func (c *realConn) Close() error {
	return c.file.Close()
}
