// Package servicemanager implements the well-known name-lookup broker that
// lives at handle 0: a typed client shim used by every process to publish
// and locate services, and the in-process server implementation run by
// whichever process calls BecomeContextManager.
package servicemanager

import (
	"github.com/vela-os/binder/internal/ibinder"
)

// Transaction codes for every IServiceManager operation, numbered from the
// first user-assignable code in the order spec.md lists them.
const (
	txGetService uint32 = ibinder.FirstCallTransaction + iota
	txCheckService
	txAddService
	txListServices
	txRegisterForNotifications
	txUnregisterForNotifications
	txIsDeclared
	txGetDeclaredInstances
	txRegisterClientCallback
	txTryUnregisterService
	txGetServiceDebugInfo
)

// ServiceDebugInfo is one entry in the list GetServiceDebugInfo returns.
type ServiceDebugInfo struct {
	Name           string
	PID            int32
	RegistrationID string
}
