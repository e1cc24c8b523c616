// Package refbase implements the strong/weak reference-counting machine that backs
// every object crossing a process boundary. All state lives in atomic counters;
// there is no mutex, so incStrong/decStrong/incWeak/decWeak can run concurrently
// from multiple threads without serializing on a lock.
package refbase

import (
	"fmt"
	"sync/atomic"
)

// initialStrongValue is the sentinel meaning "nobody has ever taken a strong
// reference yet". The first successful incStrong replaces it with 1.
const initialStrongValue = int32(1) << 28

// LifetimeMode selects how the counter decides an object is dead.
type LifetimeMode int32

const (
	// StrongLifetime frees the object as soon as strong drops to zero,
	// regardless of outstanding weak references.
	StrongLifetime LifetimeMode = iota
	// WeakLifetime keeps the object alive as long as either count is
	// nonzero; it is freed only when both reach zero.
	WeakLifetime
)

// Hooks lets the owning object observe reference-count transitions. All methods
// are optional; a zero-valued Hooks is safe to use.
type Hooks interface {
	// OnFirstRef fires exactly once, the moment the first strong reference
	// is taken.
	OnFirstRef()
	// OnLastStrongRef fires exactly once, the moment strong drops to zero.
	OnLastStrongRef()
	// OnIncStrongAttempted is consulted by AttemptIncStrong when the
	// current strong count is zero; returning true allows the upgrade
	// anyway (used by weak-lifetime objects).
	OnIncStrongAttempted() bool
	// OnLastWeakRef fires when weak drops to zero under WeakLifetime,
	// immediately before the object is destroyed.
	OnLastWeakRef()
	// Destroy is invoked exactly once, when the counter decides the
	// payload must be freed.
	Destroy()
}

// NopHooks is an embeddable no-op Hooks implementation.
type NopHooks struct{}

func (NopHooks) OnFirstRef()                {}
func (NopHooks) OnLastStrongRef()           {}
func (NopHooks) OnIncStrongAttempted() bool { return false }
func (NopHooks) OnLastWeakRef()             {}
func (NopHooks) Destroy()                   {}

// Counter is the shared reference-count block. It may outlive its payload: a
// holder of a weak reference keeps the block reachable for the garbage
// collector even after the payload itself has been destroyed, so that a later
// upgrade attempt safely observes "gone" instead of dereferencing freed memory.
type Counter struct {
	strong   atomic.Int32
	weak     atomic.Int32
	lifetime atomic.Int32 // LifetimeMode
	hooks    Hooks
}

// New creates a counter in StrongLifetime mode with strong count at the
// "never referenced" sentinel.
func New(hooks Hooks) *Counter {
	if hooks == nil {
		hooks = NopHooks{}
	}
	c := &Counter{hooks: hooks}
	c.strong.Store(initialStrongValue)
	return c
}

// ExtendObjectLifetime switches to the given lifetime mode. Must be called
// before any external reference is taken; the caller — not this package —
// is responsible for that ordering guarantee.
func (c *Counter) ExtendObjectLifetime(mode LifetimeMode) {
	c.lifetime.Store(int32(mode))
}

func (c *Counter) lifetimeMode() LifetimeMode {
	return LifetimeMode(c.lifetime.Load())
}

// IncStrong increments the strong count. The very first successful call
// replaces the sentinel with 1 and fires OnFirstRef. Every call also
// increments the weak count, which the matching DecStrong gives back.
func (c *Counter) IncStrong() {
	c.weak.Add(1)
	prev := c.strong.Add(1) - 1
	if prev == initialStrongValue {
		c.strong.Add(-initialStrongValue)
		c.hooks.OnFirstRef()
		return
	}
	if prev <= 0 {
		panic(fmt.Sprintf("refbase: incStrong on object with strong count %d", prev))
	}
}

// IncStrongRequireStrong is like IncStrong but panics if no prior strong
// reference exists, guarding against the race where only a weak ref is held.
func (c *Counter) IncStrongRequireStrong() {
	cur := c.strong.Load()
	if cur <= 0 || cur == initialStrongValue {
		panic("refbase: incStrongRequireStrong called with no existing strong reference")
	}
	c.IncStrong()
}

// ForceIncStrong behaves like IncStrong but is also valid starting from the
// initial sentinel even when called concurrently from multiple paths — used
// when reconstructing a strong reference from a driver-delivered cookie.
func (c *Counter) ForceIncStrong() {
	c.weak.Add(1)
	prev := c.strong.Add(1) - 1
	if prev == initialStrongValue {
		c.strong.Add(-initialStrongValue)
		c.hooks.OnFirstRef()
	}
}

// DecStrong decrements the strong count. Dropping to zero fires
// OnLastStrongRef and, under StrongLifetime, destroys the object. DecStrong
// always also decrements weak, mirroring RefBase::decStrong in the source.
func (c *Counter) DecStrong() {
	remaining := c.strong.Add(-1)
	if remaining == 0 {
		c.hooks.OnLastStrongRef()
		if c.lifetimeMode() == StrongLifetime {
			c.destroyPayload()
		}
	} else if remaining < 0 {
		panic(fmt.Sprintf("refbase: decStrong underflow, strong=%d", remaining))
	}
	c.decWeakInternal()
}

// IncWeak increments the weak count.
func (c *Counter) IncWeak() {
	c.weak.Add(1)
}

// DecWeak decrements the weak count. Under WeakLifetime, reaching zero on
// both counts destroys the payload.
func (c *Counter) DecWeak() {
	c.decWeakInternal()
}

func (c *Counter) decWeakInternal() {
	remaining := c.weak.Add(-1)
	if remaining < 0 {
		panic(fmt.Sprintf("refbase: decWeak underflow, weak=%d", remaining))
	}
	if remaining == 0 && c.lifetimeMode() == WeakLifetime {
		c.hooks.OnLastWeakRef()
		c.destroyPayload()
	}
}

func (c *Counter) destroyPayload() {
	c.hooks.Destroy()
}

// AttemptIncStrong tries to upgrade a weak reference to a strong one. It
// succeeds if the current strong count is already > 0, or if the object's
// OnIncStrongAttempted hook opts in (typically true for weak-lifetime
// objects wanting to be resurrected from zero).
func (c *Counter) AttemptIncStrong() bool {
	for {
		cur := c.strong.Load()
		if cur == initialStrongValue {
			// Never referenced: treat the same as zero for the purpose
			// of the attempt hook, but still establish first-ref bookkeeping.
			if !c.hooks.OnIncStrongAttempted() {
				return false
			}
			if c.strong.CompareAndSwap(cur, 1) {
				c.weak.Add(1)
				c.hooks.OnFirstRef()
				return true
			}
			continue
		}
		if cur <= 0 {
			if !c.hooks.OnIncStrongAttempted() {
				return false
			}
			if c.strong.CompareAndSwap(cur, 1) {
				c.weak.Add(1)
				return true
			}
			continue
		}
		if c.strong.CompareAndSwap(cur, cur+1) {
			c.weak.Add(1)
			return true
		}
	}
}

// AttemptIncWeak is the weak-side analogue of AttemptIncStrong: it fails
// whenever the weak count has already dropped to zero, in either lifetime
// mode.
func (c *Counter) AttemptIncWeak() bool {
	for {
		cur := c.weak.Load()
		if cur <= 0 {
			return false
		}
		if c.weak.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// StrongCount returns the current strong count (0 if never referenced).
func (c *Counter) StrongCount() int32 {
	v := c.strong.Load()
	if v == initialStrongValue {
		return 0
	}
	return v
}

// WeakCount returns the current weak count.
func (c *Counter) WeakCount() int32 {
	return c.weak.Load()
}
