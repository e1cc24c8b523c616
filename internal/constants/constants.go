// Package constants holds the tunable default values for the binder runtime.
// The root package re-exports the ones callers are expected to reference.
package constants

const (
	// DefaultDriverPath is where the binder character device is normally found.
	DefaultDriverPath = "/dev/binder"

	// DefaultMaxThreads is the thread-pool ceiling announced via SET_MAX_THREADS.
	DefaultMaxThreads = 2

	// DefaultMmapSize is the size of the receive region mapped from the driver.
	DefaultMmapSize = 4 * 1024

	// ContextManagerHandle is the fixed handle for the service manager.
	ContextManagerHandle = uint32(0)

	// OutboundParcelCapacity / InboundParcelCapacity are 256-byte command
	// buffer sizes. internal/threadstate does not read them: its outbound
	// command buffer starts at a literal 256 bytes and each driver read uses
	// an 8 KiB buffer.
	OutboundParcelCapacity = 256
	InboundParcelCapacity  = 256

	// MaxParcelSize is the largest a parcel's data buffer may grow to; writes
	// that would exceed it fail with BAD_VALUE.
	MaxParcelSize = 1<<31 - 1

	// LargeTransactionWarnBytes is a 2 KiB reply/outbound size threshold. No
	// code in this module compares a transaction against it or logs a
	// warning for it.
	LargeTransactionWarnBytes = 2 * 1024

	// ServiceManagerDescriptor is the fixed interface descriptor advertised
	// by the service-manager broker, used by checkInterface on both ends.
	ServiceManagerDescriptor = "Vela.os.IServiceManager"

	// MaxServiceNameLength bounds addService's name argument.
	MaxServiceNameLength = 127
)

// EnvDriverPath is the environment variable that overrides DefaultDriverPath.
const EnvDriverPath = "BINDER_DRIVER"
