package core

// PowerState is the runtime state of a VM as reported by qvm-ls.
type PowerState string

const (
	PowerRunning   PowerState = "Running"
	PowerHalted    PowerState = "Halted"
	PowerPaused    PowerState = "Paused"
	PowerTransient PowerState = "Transient"
	PowerUnknown   PowerState = "Unknown"
)

// ParsePowerState maps a qvm-ls STATE column to a PowerState. Transitional
// states (Dying, Crashed, Suspended) are reported as Transient.
func ParsePowerState(s string) PowerState {
	switch s {
	case "Running":
		return PowerRunning
	case "Halted":
		return PowerHalted
	case "Paused":
		return PowerPaused
	case "Transient", "Dying", "Crashed", "Suspended", "Halting", "Starting", "Pausing":
		return PowerTransient
	default:
		return PowerUnknown
	}
}

// String, PowerState'i string'e çevirir.
func (s PowerState) String() string {
	return string(s)
}

// IsHalted reports whether the VM is fully stopped.
func (s PowerState) IsHalted() bool {
	return s == PowerHalted
}
