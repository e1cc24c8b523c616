// Package localbinder implements BBinder, the base every stub-side object
// embeds: dispatch of the reserved transaction codes, the per-object
// attached-object map, and registration with the thread-state transport so
// incoming transactions can find this object by its flattened token.
package localbinder

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/refbase"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/threadstate"
)

// Interface is implemented by a concrete stub to handle the application
// codes FirstCallTransaction..LastCallTransaction. Base answers the reserved
// codes itself and rejects every other code with UnknownTransaction.
type Interface interface {
	// Descriptor returns the interface name this stub implements.
	Descriptor() string
	// Dispatch handles an application-defined transaction code.
	Dispatch(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status
}

type attachEntry struct {
	object  any
	cookie  any
	cleanup func(key, object, cookie any)
}

// Base is embedded by every local (stub) object. It is not safe to copy
// after first use.
type Base struct {
	refs   *refbase.Counter
	impl   Interface
	token  uint64
	mu     sync.Mutex
	attrs  map[any]attachEntry
	parceled atomic.Bool
	extra    atomic.Pointer[any]
}

var tokenCounter atomic.Uint64

// New wraps impl in a Base, registers it with the transport layer under a
// fresh token, and returns the combined object. Most generated stubs embed
// *Base directly rather than calling New themselves.
func New(impl Interface) *Base {
	token := tokenCounter.Add(1)
	b := &Base{impl: impl, token: token}
	b.refs = refbase.New(b)
	threadstate.RegisterLocal(token, b)
	return b
}

// Token returns the pointer-sized identity this object is flattened with in
// a flat_binder_object.
func (b *Base) Token() uint64 { return b.token }

// IncStrong satisfies the optional strong-reference interface internal/parcel
// looks for when flattening an embedded object, so writing this object into a
// parcel keeps it alive for the lifetime of that reference. internal/parcel
// never calls DecStrong.
func (b *Base) IncStrong() { b.refs.IncStrong() }
func (b *Base) DecStrong() { b.refs.DecStrong() }

// OnFirstRef/OnLastStrongRef/OnIncStrongAttempted/OnLastWeakRef/Destroy
// implement refbase.Hooks with the defaults a plain local object needs: it
// never resurrects from zero, and it unregisters from the transport once
// its last strong reference is released so a stale transaction can't find
// it again.
func (b *Base) OnFirstRef()                {}
func (b *Base) OnLastStrongRef()           { threadstate.UnregisterLocal(b.token) }
func (b *Base) OnIncStrongAttempted() bool { return false }
func (b *Base) OnLastWeakRef()             {}
func (b *Base) Destroy()                   {}

// Descriptor delegates to the wrapped implementation.
func (b *Base) Descriptor() string { return b.impl.Descriptor() }

// LocalBinder returns b, satisfying ibinder.Binder's downcast pair.
func (b *Base) LocalBinder() ibinder.LocalBinder { return b }

// RemoteBinder always returns nil for a local object.
func (b *Base) RemoteBinder() ibinder.RemoteBinder { return nil }

// Transact rewinds data to its start and calls straight into OnTransact; a
// local object never goes through the driver to reach itself.
func (b *Base) Transact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	if p, ok := data.(*parcel.Parcel); ok && p != nil {
		p.SetDataPosition(0)
	}
	return b.OnTransact(code, data, reply, flags)
}

// PingBinder answers the reserved ping code without reaching the
// implementation.
func (b *Base) PingBinder() status.Status { return status.OK }

// LinkToDeath/UnlinkToDeath are meaningless on a local object: the caller
// already lives in this process, so it can never receive a death
// notification for itself.
func (b *Base) LinkToDeath(ibinder.DeathRecipient, any, uint32) status.Status {
	return status.InvalidOperation
}
func (b *Base) UnlinkToDeath(ibinder.DeathRecipient, any, uint32) (bool, status.Status) {
	return false, status.InvalidOperation
}

// AttachObject installs an auxiliary value under key, replacing and
// cleaning up any previous value stored there.
func (b *Base) AttachObject(key any, object any, cookie any, cleanup func(key, object, cookie any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attrs == nil {
		b.attrs = make(map[any]attachEntry)
	}
	if old, ok := b.attrs[key]; ok && old.cleanup != nil {
		old.cleanup(key, old.object, old.cookie)
	}
	b.attrs[key] = attachEntry{object: object, cookie: cookie, cleanup: cleanup}
}

// FindObject returns the value attached under key, or nil.
func (b *Base) FindObject(key any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attrs[key].object
}

// DetachObject removes and returns the value attached under key without
// running its cleanup callback; the caller takes ownership.
func (b *Base) DetachObject(key any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.attrs[key]
	if !ok {
		return nil
	}
	delete(b.attrs, key)
	return e.object
}

// SetExtension installs an auxiliary object transactions can retrieve with
// EXTENSION_TRANSACTION. It may only be set once per object: any second call
// is rejected with AlreadyExists, the one-shot semantics of a CAS-guarded
// extension slot rather than a freely mutable field. Calling it after the
// object has been marked parceled (see markParceled) panics.
func (b *Base) SetExtension(ext any) status.Status {
	if b.parceled.Load() {
		panic("localbinder: SetExtension called after the object was parceled")
	}
	if !b.extra.CompareAndSwap(nil, &ext) {
		return status.AlreadyExists
	}
	return status.OK
}

func (b *Base) extension() any {
	if p := b.extra.Load(); p != nil {
		return *p
	}
	return nil
}

// markParceled is called at the start of every OnTransact; once it has run,
// SetExtension panics. Writing the object into a parcel does not call it.
func (b *Base) markParceled() { b.parceled.Store(true) }

// OnTransact dispatches the reserved transaction codes and falls through to
// the wrapped implementation for everything else.
func (b *Base) OnTransact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	b.markParceled()

	switch code {
	case ibinder.PingTransaction:
		return status.OK

	case ibinder.InterfaceTransaction:
		if p, ok := reply.(interface{ WriteString(string) status.Status }); ok {
			p.WriteString(b.Descriptor())
		}
		return status.OK

	case ibinder.ExtensionTransaction:
		var eb ibinder.Binder
		if ext := b.extension(); ext != nil {
			eb, _ = ext.(ibinder.Binder)
		}
		if p, ok := reply.(interface {
			WriteStrongBinder(ibinder.Binder) status.Status
		}); ok {
			p.WriteStrongBinder(eb)
		}
		return status.OK

	case ibinder.DebugPIDTransaction:
		if p, ok := reply.(interface{ WriteInt32(int32) status.Status }); ok {
			p.WriteInt32(int32(os.Getpid()))
		}
		return status.OK

	case ibinder.DumpTransaction, ibinder.ShellCommandTransaction, ibinder.SysPropsTransaction:
		return status.OK

	default:
		if code < ibinder.FirstCallTransaction || code > ibinder.LastCallTransaction {
			return status.UnknownTransaction
		}
		if b.impl == nil {
			return status.UnknownTransaction
		}
		return b.impl.Dispatch(code, data, reply, flags)
	}
}

// String renders a short diagnostic identity, useful in logs.
func (b *Base) String() string {
	return fmt.Sprintf("BBinder{%s token=%d}", b.Descriptor(), b.token)
}
