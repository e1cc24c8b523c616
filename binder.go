package binder

import (
	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/localbinder"
	"github.com/vela-os/binder/internal/status"
)

// IBinder is the capability every object implements, local or remote: it is
// the type application code and generated stub/proxy pairs program against.
type IBinder = ibinder.Binder

// ILocalBinder is implemented only by stub-side (local) objects.
type ILocalBinder = ibinder.LocalBinder

// IRemoteBinder is implemented only by proxy-side (remote) objects.
type IRemoteBinder = ibinder.RemoteBinder

// DeathRecipient is notified when a remote object's owning process exits.
type DeathRecipient = ibinder.DeathRecipient

// Parcel is the minimal read/write surface a transaction carries; the
// concrete type living behind it is internal/parcel.Parcel, reached through
// this module's public constructors rather than imported directly.
type Parcel = ibinder.Parcel

// TransactionFlags are the bits carried on a transaction.
type TransactionFlags = ibinder.TransactionFlags

const (
	FlagOneway         = ibinder.FlagOneway
	FlagClearBuf       = ibinder.FlagClearBuf
	FlagPrivateVendor  = ibinder.FlagPrivateVendor
	FlagAcceptFDs      = ibinder.FlagAcceptFDs
	FlagStatusCode     = ibinder.FlagStatusCode
	FlagTxnSecurityCtx = ibinder.FlagTxnSecurityCtx
	FlagInheritRT      = ibinder.FlagInheritRT
)

// Reserved transaction codes, re-exported for callers writing a custom
// OnTransact dispatcher that needs to recognize them.
const (
	PingTransaction      = ibinder.PingTransaction
	InterfaceTransaction = ibinder.InterfaceTransaction
	FirstCallTransaction = ibinder.FirstCallTransaction
	LastCallTransaction  = ibinder.LastCallTransaction
)

// Status is the stable integer status code every operation in this module
// returns; OK means success.
type Status = status.Status

const (
	OK                = status.OK
	UnknownError      = status.UnknownError
	InvalidOperation  = status.InvalidOperation
	BadValue          = status.BadValue
	BadType           = status.BadType
	NameNotFound      = status.NameNotFound
	PermissionDenied  = status.PermissionDenied
	NoInit            = status.NoInit
	AlreadyExists     = status.AlreadyExists
	DeadObject        = status.DeadObject
	FailedTransaction = status.FailedTransaction
	NotEnoughData     = status.NotEnoughData
)

// LocalBinderImpl is implemented by application code handing a local object
// to NewLocalBinder: a descriptor string plus the dispatch function for any
// transaction code not already reserved.
type LocalBinderImpl = localbinder.Interface

// NewLocalBinder wraps impl in the stub base (BBinder) every local object
// needs: reserved-code dispatch, the attached-object map, and registration
// with the transport layer so incoming transactions can find it.
func NewLocalBinder(impl LocalBinderImpl) ILocalBinder {
	return localbinder.New(impl)
}
