// Package proxy implements BpBinder, the base every remote-object handle
// wraps: transact forwarding through thread state, death-notification
// registration, and the first/last-strong-ref hooks that tell the driver
// to start and stop counting this process's interest in the remote object.
package proxy

import (
	"fmt"
	"sync"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/procstate"
	"github.com/vela-os/binder/internal/refbase"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/threadstate"
)

func init() {
	procstate.RegisterProxyFactory(func(handle uint32) ibinder.Binder {
		return newBpBinder(handle)
	})
}

type recipientEntry struct {
	recipient ibinder.DeathRecipient
	cookie    any
}

// BpBinder is the handle-based proxy for a remote object.
type BpBinder struct {
	handle uint32
	refs   *refbase.Counter

	mu         sync.Mutex
	attrs      map[any]attachEntry
	recipients []recipientEntry
	alive      bool
	descriptor string
}

type attachEntry struct {
	object  any
	cookie  any
	cleanup func(key, object, cookie any)
}

func newBpBinder(handle uint32) *BpBinder {
	b := &BpBinder{handle: handle, alive: true}
	b.refs = refbase.New(b)
	return b
}

// Handle returns the driver-assigned handle this proxy speaks for.
func (b *BpBinder) Handle() uint32 { return b.handle }

// IncStrong and DecStrong satisfy the optional strong-reference interface
// internal/parcel looks for when flattening this proxy into another outgoing
// transaction; the first IncStrong triggers OnFirstRef's BC_ACQUIRE and the
// matching DecStrong back to zero triggers OnLastStrongRef's BC_RELEASE.
func (b *BpBinder) IncStrong() { b.refs.IncStrong() }
func (b *BpBinder) DecStrong() { b.refs.DecStrong() }

// IsAlive reports whether this handle is still usable: it turns false once a
// death notification has arrived or a transaction has returned DeadObject.
func (b *BpBinder) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

// LocalBinder always returns nil for a remote object.
func (b *BpBinder) LocalBinder() ibinder.LocalBinder { return nil }

// RemoteBinder returns b, satisfying ibinder.Binder's downcast pair.
func (b *BpBinder) RemoteBinder() ibinder.RemoteBinder { return b }

// Descriptor returns the cached interface name, populated the first time a
// caller resolves it via Resolve. Before that it returns "".
func (b *BpBinder) Descriptor() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.descriptor
}

// Resolve fetches the remote object's interface descriptor via
// INTERFACE_TRANSACTION and caches it, returning the cached value on every
// later call instead of issuing another round trip.
func (b *BpBinder) Resolve() (string, status.Status) {
	if d := b.Descriptor(); d != "" {
		return d, status.OK
	}
	if proc, err := procstate.Self(); err == nil {
		if d, ok := proc.LookupDescriptor(b.handle); ok {
			b.mu.Lock()
			b.descriptor = d
			b.mu.Unlock()
			return d, status.OK
		}
	}
	reply := parcel.New()
	if st := b.Transact(ibinder.InterfaceTransaction, parcel.New(), reply, 0); st != status.OK {
		return "", st
	}
	reply.SetDataPosition(0)
	desc, st := reply.ReadString()
	if st != status.OK {
		return "", st
	}
	b.mu.Lock()
	b.descriptor = desc
	b.mu.Unlock()
	if proc, err := procstate.Self(); err == nil {
		proc.CacheDescriptor(b.handle, desc)
	}
	return desc, status.OK
}

// Transact strips FlagPrivateVendor and forwards to the calling thread's
// ThreadState, unless the handle is already known dead, in which case it
// fails fast with DeadObject instead of waiting on a driver round trip that
// cannot succeed. A DeadObject result marks the proxy dead.
func (b *BpBinder) Transact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	if !b.IsAlive() {
		return status.DeadObject
	}
	proc, err := procstate.Self()
	if err != nil {
		return status.NoInit
	}
	p, _ := data.(*parcel.Parcel)
	r, _ := reply.(*parcel.Parcel)
	st := threadstate.Current(proc).Transact(b.handle, code, p, r, flags&^ibinder.FlagPrivateVendor)
	if st == status.DeadObject {
		b.mu.Lock()
		b.alive = false
		b.mu.Unlock()
	}
	return st
}

// PingBinder issues the reserved ping transaction.
func (b *BpBinder) PingBinder() status.Status {
	return b.Transact(ibinder.PingTransaction, parcel.New(), nil, 0)
}

// LinkToDeath registers recipient to be notified when this handle's remote
// process exits. Only the first watcher on a given proxy actually talks to
// the driver: it sends BC_REQUEST_DEATH_NOTIFICATION keyed by deathToken(),
// and every later watcher just joins b.recipients, all of them fired
// together when threadstate routes the eventual BR_DEAD_BINDER back to
// sendObituary via RegisterDeathCallback.
func (b *BpBinder) LinkToDeath(recipient ibinder.DeathRecipient, cookie any, flags uint32) status.Status {
	if recipient == nil {
		return status.UnexpectedNull
	}
	b.mu.Lock()
	if !b.alive {
		b.mu.Unlock()
		return status.DeadObject
	}
	first := len(b.recipients) == 0
	b.recipients = append(b.recipients, recipientEntry{recipient: recipient, cookie: cookie})
	b.mu.Unlock()

	if first {
		token := b.deathToken()
		threadstate.RegisterDeathCallback(token, b.sendObituary)
		if proc, err := procstate.Self(); err == nil {
			threadstate.Current(proc).RequestDeathNotification(b.handle, token)
		}
	}
	return status.OK
}

// UnlinkToDeath removes a previously registered recipient, clearing the
// driver-side request once the last watcher on this proxy is gone.
func (b *BpBinder) UnlinkToDeath(recipient ibinder.DeathRecipient, cookie any, flags uint32) (bool, status.Status) {
	b.mu.Lock()
	idx := -1
	for i, e := range b.recipients {
		if e.recipient == recipient {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false, status.NameNotFound
	}
	b.recipients = append(b.recipients[:idx], b.recipients[idx+1:]...)
	empty := len(b.recipients) == 0
	b.mu.Unlock()

	if empty {
		token := b.deathToken()
		threadstate.UnregisterDeathCallback(token)
		if proc, err := procstate.Self(); err == nil {
			threadstate.Current(proc).ClearDeathNotification(b.handle, token)
		}
	}
	return true, status.OK
}

// deathToken derives the cookie used to key this proxy's death callback;
// one BpBinder registers at most one driver-side death request regardless of
// how many recipients are linked to it, so the handle itself (widened) is a
// stable, collision-free key.
func (b *BpBinder) deathToken() uint64 { return uint64(b.handle) }

// sendObituary runs when BR_DEAD_BINDER arrives for this proxy's token. It
// takes ownership of the full recipient list under the lock, clears it and
// marks the proxy dead, then notifies every recipient that was watching —
// never just one — outside the lock.
func (b *BpBinder) sendObituary() {
	b.mu.Lock()
	if !b.alive {
		b.mu.Unlock()
		return
	}
	b.alive = false
	recipients := b.recipients
	b.recipients = nil
	b.mu.Unlock()

	threadstate.UnregisterDeathCallback(b.deathToken())
	if proc, err := procstate.Self(); err == nil {
		threadstate.Current(proc).ClearDeathNotification(b.handle, b.deathToken())
	}

	for _, e := range recipients {
		e.recipient.BinderDied(b)
	}
}

// AttachObject/FindObject/DetachObject mirror localbinder.Base's auxiliary
// map so callers can cache per-proxy state (e.g. a typed wrapper) without a
// side table.
func (b *BpBinder) AttachObject(key any, object any, cookie any, cleanup func(key, object, cookie any)) {
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

func (b *BpBinder) FindObject(key any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attrs[key].object
}

func (b *BpBinder) DetachObject(key any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.attrs[key]
	if !ok {
		return nil
	}
	delete(b.attrs, key)
	return e.object
}

// OnFirstRef/OnLastStrongRef tell the driver this process has started or
// stopped caring about the remote object, via BC_ACQUIRE/BC_RELEASE.
func (b *BpBinder) OnFirstRef() {
	if proc, err := procstate.Self(); err == nil {
		threadstate.Current(proc).AcquireHandle(b.handle)
	}
}

func (b *BpBinder) OnLastStrongRef() {
	if proc, err := procstate.Self(); err == nil {
		threadstate.Current(proc).ReleaseHandle(b.handle)
		proc.ExpungeHandle(b.handle, b)
	}
}

func (b *BpBinder) OnIncStrongAttempted() bool { return b.IsAlive() }
func (b *BpBinder) OnLastWeakRef()             {}
func (b *BpBinder) Destroy()                   {}

// String renders a short diagnostic identity, useful in logs.
func (b *BpBinder) String() string {
	return fmt.Sprintf("BpBinder{handle=%d alive=%v}", b.handle, b.IsAlive())
}
