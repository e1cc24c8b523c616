package binder

import (
	"github.com/vela-os/binder/internal/procstate"
	"github.com/vela-os/binder/internal/status"
)

// ProcessOptions configures the process-wide binder runtime, mirroring the
// teacher's device-parameter struct: a handful of named knobs with a
// documented default constructor rather than positional arguments. No
// function in this module takes a ProcessOptions: Self always opens
// DefaultDriverPath (or the EnvDriverPath override) with the values
// DefaultOptions returns.
type ProcessOptions struct {
	// DriverPath overrides DefaultDriverPath; ignored if the EnvDriverPath
	// environment variable is set, since that always wins.
	DriverPath string
	// MaxThreads is the initial thread-pool ceiling announced to the driver.
	MaxThreads uint32
	// MmapSize is the size of the receive-buffer mapping requested from the
	// driver on open.
	MmapSize int
	// CallRestriction bounds what kind of outgoing calls this process's
	// threads may make while servicing an incoming transaction.
	CallRestriction CallRestriction
}

// CallRestriction re-exports internal/procstate's enum so callers configuring
// a ProcessState don't need to reach into internal/procstate directly.
type CallRestriction = procstate.CallRestriction

const (
	CallRestrictionNone             = procstate.CallRestrictionNone
	CallRestrictionErrorIfNotOneway = procstate.CallRestrictionErrorIfNotOneway
	CallRestrictionFatalIfNotOneway = procstate.CallRestrictionFatalIfNotOneway
)

// DefaultOptions returns the tunables every process gets from Self().
func DefaultOptions() ProcessOptions {
	return ProcessOptions{
		DriverPath: DefaultDriverPath,
		MaxThreads: DefaultMaxThreads,
		MmapSize:   DefaultMmapSize,
	}
}

// ProcessState is the public facade over internal/procstate.State: the
// process-wide handle table, mmap region, and thread pool.
type ProcessState struct {
	inner *procstate.State
}

// Self returns the process-wide ProcessState, opening the default (or
// BINDER_DRIVER-overridden) driver path on first use.
func Self() (*ProcessState, error) {
	s, err := procstate.Self()
	if err != nil {
		return nil, err
	}
	return &ProcessState{inner: s}, nil
}

// GetContextObject returns the well-known service-manager proxy at handle 0.
func (p *ProcessState) GetContextObject() (IBinder, status.Status) {
	return p.inner.GetContextObject()
}

// GetStrongProxyForHandle returns the cached proxy for handle, minting one
// through the registered proxy factory the first time the handle is seen.
func (p *ProcessState) GetStrongProxyForHandle(handle uint32) (IBinder, status.Status) {
	return p.inner.GetStrongProxyForHandle(handle)
}

// BecomeContextManager registers this process as the service manager.
func (p *ProcessState) BecomeContextManager(descriptor string) status.Status {
	return p.inner.BecomeContextManager(descriptor)
}

// IsContextManager reports whether BecomeContextManager succeeded earlier.
func (p *ProcessState) IsContextManager() bool { return p.inner.IsContextManager() }

// SetThreadPoolMaxThreadCount announces a new thread-pool ceiling to the driver.
func (p *ProcessState) SetThreadPoolMaxThreadCount(n uint32) status.Status {
	return p.inner.SetThreadPoolMaxThreadCount(n)
}

// SetCallRestriction bounds what kind of calls a thread inside this process
// may make while servicing an incoming transaction.
func (p *ProcessState) SetCallRestriction(mode CallRestriction) {
	p.inner.SetCallRestriction(mode)
}

// StartThreadPool starts one more pool thread on every call.
func (p *ProcessState) StartThreadPool() status.Status { return p.inner.StartThreadPool() }

// Shutdown releases the driver connection and its mapping.
func (p *ProcessState) Shutdown() error { return p.inner.Shutdown() }

// Inner exposes the wrapped internal/procstate.State for packages inside
// this module (servicemanager, the test suite) that need the full surface
// the public facade intentionally narrows.
func (p *ProcessState) Inner() *procstate.State { return p.inner }
