package binder

import "github.com/vela-os/binder/internal/constants"

// Re-exported tunables, so callers configuring a ProcessState don't need to
// reach into internal/constants directly.
const (
	DefaultDriverPath         = constants.DefaultDriverPath
	DefaultMaxThreads         = constants.DefaultMaxThreads
	DefaultMmapSize           = constants.DefaultMmapSize
	ContextManagerHandle      = constants.ContextManagerHandle
	OutboundParcelCapacity    = constants.OutboundParcelCapacity
	InboundParcelCapacity     = constants.InboundParcelCapacity
	MaxParcelSize             = constants.MaxParcelSize
	LargeTransactionWarnBytes = constants.LargeTransactionWarnBytes
	ServiceManagerDescriptor  = constants.ServiceManagerDescriptor
	MaxServiceNameLength      = constants.MaxServiceNameLength
)

// EnvDriverPath is the environment variable that overrides DefaultDriverPath.
const EnvDriverPath = constants.EnvDriverPath
