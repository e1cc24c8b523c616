// Package ibinder holds the capability interface shared by the local and remote
// object variants, plus the flat wire descriptor for an embedded object
// reference. It exists to break the import cycle between internal/parcel (which
// must flatten/unflatten objects) and internal/localbinder + internal/proxy
// (which implement the interface parcel flattens).
package ibinder

import "github.com/vela-os/binder/internal/status"

// TransactionFlags are the bits carried on a transaction, defined in spec.md §6.
type TransactionFlags uint32

const (
	FlagOneway         TransactionFlags = 0x01
	FlagClearBuf       TransactionFlags = 0x20
	FlagPrivateVendor  TransactionFlags = 0x10
	FlagAcceptFDs      TransactionFlags = 0x10000000
	FlagStatusCode     TransactionFlags = 0x8000
	FlagTxnSecurityCtx TransactionFlags = 0x1000
	FlagInheritRT      TransactionFlags = 0x40
)

// Reserved transaction codes, built from four ASCII characters per spec.md §6.
const (
	PingTransaction         uint32 = 0x5f504e47 // '_PNG'
	DumpTransaction         uint32 = 0x5f444d50 // '_DMP'
	ShellCommandTransaction uint32 = 0x5f434d44 // '_CMD'
	InterfaceTransaction    uint32 = 0x5f4e5446 // '_NTF' (INTERFACE)
	SysPropsTransaction     uint32 = 0x5f535052 // '_SPR'
	ExtensionTransaction    uint32 = 0x5f455854 // '_EXT'
	DebugPIDTransaction     uint32 = 0x5f504944 // '_PID'
	SetRPCClientTransaction uint32 = 0x5f525043 // '_RPC'
	FirstCallTransaction    uint32 = 0x00000001
	LastCallTransaction     uint32 = 0x00ffffff
)

// Parcel is the minimal surface internal/ibinder needs from internal/parcel to
// avoid importing it directly (which would recreate the cycle the other way).
type Parcel interface {
	DataSize() int
}

// Binder is the capability set every object implements, local or remote,
// as specified in spec.md §9's note on exposing polymorphism at interface
// boundaries instead of a vtable-by-function-pointer struct.
type Binder interface {
	// Transact sends code/data through this object and fills reply (nil for
	// oneway calls).
	Transact(code uint32, data Parcel, reply Parcel, flags TransactionFlags) status.Status

	// LinkToDeath registers a death recipient; only meaningful on remote
	// objects. Local objects return InvalidOperation.
	LinkToDeath(recipient DeathRecipient, cookie any, flags uint32) status.Status
	UnlinkToDeath(recipient DeathRecipient, cookie any, flags uint32) (bool, status.Status)

	// AttachObject/FindObject/DetachObject manage the per-object auxiliary
	// map described in spec.md §3.
	AttachObject(key any, object any, cleanupCookie any, cleanup func(key, object, cookie any))
	FindObject(key any) any
	DetachObject(key any) any

	// LocalBinder/RemoteBinder let callers downcast without a type switch,
	// returning nil on the variant that doesn't apply — grounded on
	// IBinder.h's localBinder()/remoteBinder() pair.
	LocalBinder() LocalBinder
	RemoteBinder() RemoteBinder

	// Descriptor returns the interface name this object was generated for.
	Descriptor() string

	// PingBinder issues the reserved PING_TRANSACTION.
	PingBinder() status.Status
}

// LocalBinder is implemented only by stub-side objects.
type LocalBinder interface {
	Binder
	// OnTransact is the generated dispatch function.
	OnTransact(code uint32, data Parcel, reply Parcel, flags TransactionFlags) status.Status
}

// RemoteBinder is implemented only by proxy-side objects.
type RemoteBinder interface {
	Binder
	Handle() uint32
	IsAlive() bool
}

// DeathRecipient is notified when a remote object's process has exited.
type DeathRecipient interface {
	BinderDied(who RemoteBinder)
}
