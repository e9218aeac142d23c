package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/framepace/compositor/internal/logging"
)

// NowFunc supplies monotonic-ish timestamps; injectable for deterministic
// tests.
type NowFunc func() time.Time

// VsyncModulator decides, once per display refresh, which of the three
// timing presets is active. Inputs arrive from arbitrary caller threads
// (transaction and refresh-rate events) and from the single display-refresh
// thread (per-frame GPU usage); everything converges on one selection
// function guarded by one lock.
//
// Mutators that can change the selection return the new config together
// with a changed flag; a false flag means the call left the selection as it
// was and the config value must be ignored.
type VsyncModulator struct {
	cfg      Config
	now      NowFunc
	registry LivenessRegistry
	tracer   Tracer
	logger   zerolog.Logger

	mu        sync.Mutex
	configSet VsyncConfigSet
	current   VsyncConfig

	earlyWakeupRequests       map[ClientHandle]struct{}
	transactionSchedule       TransactionSchedule
	earlyTransactionFrames    int
	earlyGpuFrames            int
	earlyTransactionStartTime time.Time
	lastTransactionCommitTime time.Time
	refreshRateChangePending  bool
}

// NewVsyncModulator creates a modulator with the given initial preset set.
// A nil registry disables death tracking, a nil tracer discards snapshots
// and a nil now falls back to time.Now. An invalid cfg is replaced by
// DefaultConfig with a warning.
func NewVsyncModulator(set VsyncConfigSet, cfg Config, registry LivenessRegistry, tracer Tracer, now NowFunc) *VsyncModulator {
	logger := logging.GetDefaultLogger().With().Str("component", "vsync-modulator").Logger()

	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("invalid modulator config, using defaults")
		cfg = DefaultConfig()
	}
	if now == nil {
		now = time.Now
	}
	if tracer == nil {
		tracer = NopTracer{}
	}
	if registry == nil {
		registry = nopLivenessRegistry{}
	}

	m := &VsyncModulator{
		cfg:                 cfg,
		now:                 now,
		registry:            registry,
		tracer:              tracer,
		logger:              logger,
		configSet:           set,
		earlyWakeupRequests: make(map[ClientHandle]struct{}),
	}

	m.mu.Lock()
	m.updateVsyncConfigLocked()
	m.mu.Unlock()

	return m
}

// SetVsyncConfigSet replaces the active preset set and returns the newly
// selected config.
func (m *VsyncModulator) SetVsyncConfigSet(set VsyncConfigSet) VsyncConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configSet = set
	return m.updateVsyncConfigLocked()
}

// SetTransactionSchedule reports a transaction lifecycle event from a
// client. An early-start registers the handle for a death notification; the
// matching early-end cancels it. Registry calls are issued outside the
// modulator lock so a concurrently delivered death notification cannot
// deadlock against them.
func (m *VsyncModulator) SetTransactionSchedule(schedule TransactionSchedule, handle ClientHandle) (VsyncConfig, bool) {
	var registerWatch, cancelWatch bool

	m.mu.Lock()
	switch schedule {
	case ScheduleEarlyStart:
		if handle != "" {
			m.earlyWakeupRequests[handle] = struct{}{}
			registerWatch = true
		} else {
			m.logger.Warn().Msg("early-start requested without a valid client handle")
		}
	case ScheduleEarlyEnd:
		if _, outstanding := m.earlyWakeupRequests[handle]; handle != "" && outstanding {
			delete(m.earlyWakeupRequests, handle)
			cancelWatch = true
		} else {
			m.logger.Warn().Str("handle", string(handle)).Msg("unexpected early-end without matching early-start")
		}
	case ScheduleLate:
		// No change to the request set for non-explicit states.
	}

	// The closing transaction still has to commit; keep early pacing alive
	// for a few frames past the last request. Only an early-end that
	// actually retired a request replenishes the counter, so a stray
	// duplicate cannot re-arm the hysteresis.
	if cancelWatch && len(m.earlyWakeupRequests) == 0 {
		m.earlyTransactionFrames = m.cfg.MinEarlyTransactionFrames
		m.earlyTransactionStartTime = m.now()
	}

	var (
		config  VsyncConfig
		changed bool
	)
	// An early transaction stays an early transaction; only the commit
	// moves the schedule out of early-end.
	if schedule != m.transactionSchedule && m.transactionSchedule != ScheduleEarlyEnd {
		m.transactionSchedule = schedule
		config = m.updateVsyncConfigLocked()
		changed = true
	}
	m.mu.Unlock()

	if registerWatch {
		if err := m.registry.Register(handle, m.onClientDeath); err != nil {
			m.logger.Warn().Err(err).Str("handle", string(handle)).Msg("failed to register death watch")
		}
	}
	if cancelWatch {
		m.registry.Cancel(handle)
	}

	return config, changed
}

// OnTransactionCommit records that a previously reported transaction
// committed. This is the only way out of a sticky early-end schedule.
func (m *VsyncModulator) OnTransactionCommit() (VsyncConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastTransactionCommitTime = m.now()
	if m.transactionSchedule == ScheduleLate {
		return VsyncConfig{}, false
	}
	m.transactionSchedule = ScheduleLate
	return m.updateVsyncConfigLocked(), true
}

// OnRefreshRateChangeInitiated marks a refresh rate transition in flight.
func (m *VsyncModulator) OnRefreshRateChangeInitiated() (VsyncConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshRateChangePending {
		return VsyncConfig{}, false
	}
	m.refreshRateChangePending = true
	return m.updateVsyncConfigLocked(), true
}

// OnRefreshRateChangeCompleted clears the in-flight refresh rate transition.
func (m *VsyncModulator) OnRefreshRateChangeCompleted() (VsyncConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.refreshRateChangePending {
		return VsyncConfig{}, false
	}
	m.refreshRateChangePending = false
	return m.updateVsyncConfigLocked(), true
}

// OnDisplayRefresh applies the per-frame decay and extension rules. Called
// exactly once per displayed frame from the display-refresh thread, after
// the frame's composition path is known.
func (m *VsyncModulator) OnDisplayRefresh(usedGpuComposition bool) (VsyncConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updateNeeded := false

	// The transaction counter only decays once the commit the early window
	// was opened for has plausibly landed.
	if !m.earlyTransactionStartTime.Add(m.cfg.MinEarlyTransactionTime).After(m.lastTransactionCommitTime) {
		if m.earlyTransactionFrames > 0 {
			m.earlyTransactionFrames--
			updateNeeded = true
		}
	}

	if usedGpuComposition {
		m.earlyGpuFrames = m.cfg.MinEarlyGpuFrames
		updateNeeded = true
	} else if m.earlyGpuFrames > 0 {
		m.earlyGpuFrames--
		updateNeeded = true
	}

	if !updateNeeded {
		return VsyncConfig{}, false
	}
	return m.updateVsyncConfigLocked(), true
}

// GetVsyncConfig returns the cached current selection.
func (m *VsyncModulator) GetVsyncConfig() VsyncConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NextVsyncConfigType evaluates the selection priority against the current
// state without touching the cache.
func (m *VsyncModulator) NextVsyncConfigType() VsyncConfigType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextVsyncConfigTypeLocked()
}

// IsVsyncConfigEarly reports whether anything other than the late preset is
// selected.
func (m *VsyncModulator) IsVsyncConfigEarly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextVsyncConfigTypeLocked() != VsyncConfigLate
}

// StateSnapshot is a consistent copy of the externally observable state.
type StateSnapshot struct {
	CurrentConfig            VsyncConfig         `json:"current_config"`
	ConfigType               VsyncConfigType     `json:"config_type"`
	TransactionSchedule      TransactionSchedule `json:"transaction_schedule"`
	EarlyWakeupRequests      int                 `json:"early_wakeup_requests"`
	EarlyTransactionFrames   int                 `json:"early_transaction_frames"`
	EarlyGpuFrames           int                 `json:"early_gpu_frames"`
	RefreshRateChangePending bool                `json:"refresh_rate_change_pending"`
}

// Snapshot returns the current state under one lock acquisition.
func (m *VsyncModulator) Snapshot() StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StateSnapshot{
		CurrentConfig:            m.current,
		ConfigType:               m.nextVsyncConfigTypeLocked(),
		TransactionSchedule:      m.transactionSchedule,
		EarlyWakeupRequests:      len(m.earlyWakeupRequests),
		EarlyTransactionFrames:   m.earlyTransactionFrames,
		EarlyGpuFrames:           m.earlyGpuFrames,
		RefreshRateChangePending: m.refreshRateChangePending,
	}
}

// onClientDeath is the DeathFunc handed to the liveness registry. The
// outstanding request is discarded unconditionally; a handle that already
// ended cleanly is simply absent.
func (m *VsyncModulator) onClientDeath(handle ClientHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.earlyWakeupRequests, handle)
	m.updateVsyncConfigLocked()
}

func (m *VsyncModulator) nextVsyncConfigTypeLocked() VsyncConfigType {
	// Early pacing wins while a refresh rate change is in flight or a
	// transaction recently opened an early window.
	if len(m.earlyWakeupRequests) > 0 || m.transactionSchedule == ScheduleEarlyEnd ||
		m.earlyTransactionFrames > 0 || m.refreshRateChangePending {
		return VsyncConfigEarly
	}
	if m.earlyGpuFrames > 0 {
		return VsyncConfigEarlyGpu
	}
	return VsyncConfigLate
}

func (m *VsyncModulator) nextVsyncConfigLocked() VsyncConfig {
	switch m.nextVsyncConfigTypeLocked() {
	case VsyncConfigEarly:
		return m.configSet.Early
	case VsyncConfigEarlyGpu:
		return m.configSet.EarlyGpu
	default:
		return m.configSet.Late
	}
}

func (m *VsyncModulator) updateVsyncConfigLocked() VsyncConfig {
	config := m.nextVsyncConfigLocked()
	m.current = config

	m.tracer.TraceVsyncConfig(TraceSnapshot{
		ConfigType:               m.nextVsyncConfigTypeLocked(),
		EarlyWakeupRequests:      len(m.earlyWakeupRequests),
		EarlyTransactionFrames:   m.earlyTransactionFrames,
		EarlyGpuFrames:           m.earlyGpuFrames,
		RefreshRateChangePending: m.refreshRateChangePending,
	})

	return config
}

// nopLivenessRegistry is the registry used when death tracking is disabled.
type nopLivenessRegistry struct{}

func (nopLivenessRegistry) Register(ClientHandle, DeathFunc) error { return nil }
func (nopLivenessRegistry) Cancel(ClientHandle)                    {}
