package scheduler

import "time"

// VsyncConfig is one timing preset: how long before the vsync signal
// application work and composition work must complete. The modulator treats
// it as an opaque immutable value.
type VsyncConfig struct {
	AppWorkDuration time.Duration `json:"app_work_duration"`
	SfWorkDuration  time.Duration `json:"sf_work_duration"`
}

// VsyncConfigSet holds the three presets the modulator chooses between.
// It is replaced as a whole unit, never mutated member-wise.
type VsyncConfigSet struct {
	Early    VsyncConfig `json:"early"`
	EarlyGpu VsyncConfig `json:"early_gpu"`
	Late     VsyncConfig `json:"late"`
}

// VsyncConfigType names the currently selected preset.
type VsyncConfigType int

const (
	VsyncConfigEarly VsyncConfigType = iota
	VsyncConfigEarlyGpu
	VsyncConfigLate
)

func (t VsyncConfigType) String() string {
	switch t {
	case VsyncConfigEarly:
		return "early"
	case VsyncConfigEarlyGpu:
		return "early-gpu"
	case VsyncConfigLate:
		return "late"
	default:
		return "unknown"
	}
}

// TransactionSchedule is the pacing hint a client attaches to its
// transaction lifecycle. The zero value is ScheduleLate.
type TransactionSchedule int

const (
	// ScheduleLate is the default: no explicit early-pacing request.
	ScheduleLate TransactionSchedule = iota
	// ScheduleEarlyStart declares the client wants early pacing from now on.
	ScheduleEarlyStart
	// ScheduleEarlyEnd declares the client no longer needs early pacing.
	ScheduleEarlyEnd
)

func (s TransactionSchedule) String() string {
	switch s {
	case ScheduleLate:
		return "late"
	case ScheduleEarlyStart:
		return "early-start"
	case ScheduleEarlyEnd:
		return "early-end"
	default:
		return "unknown"
	}
}

// ClientHandle identifies a remote client holding an early-wakeup request.
// Handles are transient: minted when a client connects, dead when it goes.
type ClientHandle string
