package binder

import (
	"sync"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/status"
)

// MockBinder is a minimal, in-memory implementation of IBinder for unit
// tests that need a stand-in service object without wiring a real driver
// connection: it records every Transact call and answers from a
// caller-installed dispatch function, the same role the teacher's
// MockBackend plays for Backend-consuming tests.
type MockBinder struct {
	descriptor string
	dispatch   func(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status

	mu           sync.Mutex
	transactions []MockTransaction
	alive        bool
	attrs        map[any]any
	recipients   []ibinder.DeathRecipient
}

// MockTransaction records one call observed by a MockBinder.
type MockTransaction struct {
	Code  uint32
	Flags ibinder.TransactionFlags
}

// NewMockBinder creates a MockBinder advertising descriptor, answering every
// transaction with OK and an untouched reply unless a dispatch function is
// installed with SetDispatch.
func NewMockBinder(descriptor string) *MockBinder {
	return &MockBinder{descriptor: descriptor, alive: true}
}

// SetDispatch installs the function MockBinder.OnTransact delegates to.
func (m *MockBinder) SetDispatch(fn func(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch = fn
}

// Descriptor returns the interface name this mock advertises.
func (m *MockBinder) Descriptor() string { return m.descriptor }

// Transact and OnTransact both record the call and run the installed
// dispatch function; a MockBinder plays either role interchangeably since
// tests rarely care which side of the wire it stands in for.
func (m *MockBinder) Transact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	return m.OnTransact(code, data, reply, flags)
}

func (m *MockBinder) OnTransact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	m.mu.Lock()
	m.transactions = append(m.transactions, MockTransaction{Code: code, Flags: flags})
	fn := m.dispatch
	m.mu.Unlock()

	if code == ibinder.PingTransaction {
		return status.OK
	}
	if fn == nil {
		return status.OK
	}
	return fn(code, data, reply, flags)
}

// PingBinder always reports OK.
func (m *MockBinder) PingBinder() status.Status { return status.OK }

// IsAlive reports the liveness flag flipped by KillBinder, satisfying
// RemoteBinder for tests exercising death-notification paths.
func (m *MockBinder) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// Handle returns a fixed placeholder handle; MockBinder never talks to a
// real driver so the value carries no meaning beyond satisfying RemoteBinder.
func (m *MockBinder) Handle() uint32 { return 0 }

// LinkToDeath records recipient so KillBinder can notify it later.
func (m *MockBinder) LinkToDeath(recipient ibinder.DeathRecipient, cookie any, flags uint32) status.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive {
		return status.DeadObject
	}
	m.recipients = append(m.recipients, recipient)
	return status.OK
}

// UnlinkToDeath removes a recipient registered with LinkToDeath.
func (m *MockBinder) UnlinkToDeath(recipient ibinder.DeathRecipient, cookie any, flags uint32) (bool, status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.recipients {
		if r == recipient {
			m.recipients = append(m.recipients[:i], m.recipients[i+1:]...)
			return true, status.OK
		}
	}
	return false, status.NameNotFound
}

// KillBinder flips this mock to dead and notifies every registered death
// recipient, simulating the remote process exiting.
func (m *MockBinder) KillBinder() {
	m.mu.Lock()
	m.alive = false
	recipients := append([]ibinder.DeathRecipient(nil), m.recipients...)
	m.recipients = nil
	m.mu.Unlock()

	for _, r := range recipients {
		r.BinderDied(m)
	}
}

// AttachObject/FindObject/DetachObject mirror the auxiliary map every real
// Binder implementation carries.
func (m *MockBinder) AttachObject(key any, object any, cookie any, cleanup func(key, object, cookie any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attrs == nil {
		m.attrs = make(map[any]any)
	}
	m.attrs[key] = object
}

func (m *MockBinder) FindObject(key any) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs[key]
}

func (m *MockBinder) DetachObject(key any) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.attrs[key]
	delete(m.attrs, key)
	return v
}

// LocalBinder and RemoteBinder both return m, letting a MockBinder stand in
// for either downcast a real Binder consumer might perform.
func (m *MockBinder) LocalBinder() ibinder.LocalBinder   { return m }
func (m *MockBinder) RemoteBinder() ibinder.RemoteBinder { return m }

// Transactions returns every call observed so far, in order.
func (m *MockBinder) Transactions() []MockTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockTransaction(nil), m.transactions...)
}

// CallCount returns how many transactions have been observed.
func (m *MockBinder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

// Reset clears recorded transactions without affecting liveness or attached
// objects.
func (m *MockBinder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = nil
}

var (
	_ ibinder.Binder      = (*MockBinder)(nil)
	_ ibinder.LocalBinder = (*MockBinder)(nil)
	_ ibinder.RemoteBinder = (*MockBinder)(nil)
)
