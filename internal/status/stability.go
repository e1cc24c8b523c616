package status

// Stability is a compatibility marker that flows with an object through the wire
// format so that a vendor-compiled object can never be misused from a system
// process or vice versa.
type Stability uint8

const (
	StabilityUnknown          Stability = 0
	StabilityCompilationUnit  Stability = 0x0c
	StabilityVendor           Stability = 0x0f
	StabilityVintf            Stability = 0x13
	StabilitySystem           Stability = 0x17
)

const stabilityMask = 0xff

// Tag packs a stability level into the category byte the wire format expects.
func Tag(level Stability) int32 {
	return int32(level) & stabilityMask
}

// LevelFromTag extracts the stability level from a wire-encoded tag.
func LevelFromTag(tag int32) Stability {
	return Stability(tag & stabilityMask)
}

// Check validates that an object stamped with `declared` may be used from a
// context whose own level is `here`: a system object may use a vendor or
// compilation-unit object, but a vendor process may never use a system object.
func (declared Stability) Check(here Stability) error {
	switch {
	case declared == StabilityUnknown || here == StabilityUnknown:
		return nil
	case declared == StabilitySystem && here == StabilityVendor:
		return BadType
	default:
		return nil
	}
}

// String renders a human-readable stability level name.
func (s Stability) String() string {
	switch s {
	case StabilityCompilationUnit:
		return "compilation_unit"
	case StabilityVendor:
		return "vendor"
	case StabilityVintf:
		return "vintf"
	case StabilitySystem:
		return "system"
	default:
		return "unknown"
	}
}
