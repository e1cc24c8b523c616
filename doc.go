// Package binder implements a user-space runtime for an Android-style
// binder IPC framework: the per-process thread state that dials the kernel
// driver, the proxy/stub pair that presents remote objects as local ones,
// strong/weak reference counting across process boundaries, the parcel
// wire format, and the service-manager broker that bootstraps every other
// named service on the machine.
//
// Application code typically calls Self to reach the process-wide
// ProcessState, NewLocalBinder to publish a service object, and
// servicemanager.Default to reach the name-lookup broker.
package binder
