package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfigSet = VsyncConfigSet{
	Early:    VsyncConfig{AppWorkDuration: 16 * time.Millisecond, SfWorkDuration: 16 * time.Millisecond},
	EarlyGpu: VsyncConfig{AppWorkDuration: 16 * time.Millisecond, SfWorkDuration: 8 * time.Millisecond},
	Late:     VsyncConfig{AppWorkDuration: 33 * time.Millisecond, SfWorkDuration: 31 * time.Millisecond},
}

// fakeClock is a manually advanced NowFunc for deterministic decay tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestModulator(t *testing.T) (*VsyncModulator, *LocalLivenessRegistry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	registry := NewLocalLivenessRegistry()
	m := NewVsyncModulator(testConfigSet, DefaultConfig(), registry, NopTracer{}, clock.Now)
	require.NotNil(t, m)
	return m, registry, clock
}

func TestNewVsyncModulatorStartsLate(t *testing.T) {
	m, _, _ := newTestModulator(t)

	assert.Equal(t, VsyncConfigLate, m.NextVsyncConfigType())
	assert.Equal(t, testConfigSet.Late, m.GetVsyncConfig())
	assert.False(t, m.IsVsyncConfigEarly())
}

func TestEarlyStartSelectsEarly(t *testing.T) {
	m, registry, _ := newTestModulator(t)

	config, changed := m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Early, config)
	assert.True(t, m.IsVsyncConfigEarly())
	assert.Equal(t, 1, registry.WatchCount())
}

func TestEarlyStartWithoutHandleIsWarningOnly(t *testing.T) {
	m, registry, _ := newTestModulator(t)

	_, changed := m.SetTransactionSchedule(ScheduleEarlyStart, "")
	assert.True(t, changed)
	assert.Equal(t, 0, registry.WatchCount())
	// No request was registered, so nothing keeps the selection early.
	assert.Equal(t, VsyncConfigLate, m.NextVsyncConfigType())
}

func TestEarlyEndReplenishesTransactionFrames(t *testing.T) {
	m, registry, _ := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	config, changed := m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Early, config)
	assert.Equal(t, 0, registry.WatchCount())

	snap := m.Snapshot()
	assert.Equal(t, DefaultConfig().MinEarlyTransactionFrames, snap.EarlyTransactionFrames)
	assert.Equal(t, ScheduleEarlyEnd, snap.TransactionSchedule)
}

func TestDuplicateEarlyEndLeavesStateUnchanged(t *testing.T) {
	m, _, _ := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")
	before := m.Snapshot()

	_, changed := m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")
	assert.False(t, changed)
	assert.Equal(t, before, m.Snapshot())
}

func TestEarlyEndIsStickyAgainstLateReports(t *testing.T) {
	m, _, _ := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")

	_, changed := m.SetTransactionSchedule(ScheduleLate, "")
	assert.False(t, changed)
	assert.Equal(t, ScheduleEarlyEnd, m.Snapshot().TransactionSchedule)
	assert.True(t, m.IsVsyncConfigEarly())
}

func TestCommitIsTheOnlyExitFromEarlyEnd(t *testing.T) {
	m, _, clock := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")

	clock.Advance(5 * time.Millisecond)
	config, changed := m.OnTransactionCommit()
	assert.True(t, changed)
	// The hysteresis frames still hold the early preset.
	assert.Equal(t, testConfigSet.Early, config)
	assert.Equal(t, ScheduleLate, m.Snapshot().TransactionSchedule)

	// A second commit is a no-op.
	_, changed = m.OnTransactionCommit()
	assert.False(t, changed)
}

func TestTransactionFramesDecayOnlyAfterCommit(t *testing.T) {
	m, _, clock := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")

	// No commit yet: the counter must not decay, and early-end keeps the
	// selection early regardless.
	_, changed := m.OnDisplayRefresh(false)
	assert.False(t, changed)
	assert.Equal(t, 2, m.Snapshot().EarlyTransactionFrames)

	clock.Advance(5 * time.Millisecond)
	_, _ = m.OnTransactionCommit()

	config, changed := m.OnDisplayRefresh(false)
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Early, config)
	assert.Equal(t, 1, m.Snapshot().EarlyTransactionFrames)

	config, changed = m.OnDisplayRefresh(false)
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Late, config)
	assert.Equal(t, 0, m.Snapshot().EarlyTransactionFrames)

	// Quiescent: further refreshes report no change.
	_, changed = m.OnDisplayRefresh(false)
	assert.False(t, changed)
	assert.False(t, m.IsVsyncConfigEarly())
}

func TestTransactionFramesWaitOutMinEarlyTransactionTime(t *testing.T) {
	m, _, clock := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")

	// Commit lands inside the guard window: decay must hold off.
	clock.Advance(500 * time.Microsecond)
	_, _ = m.OnTransactionCommit()

	_, changed := m.OnDisplayRefresh(false)
	assert.False(t, changed)
	assert.Equal(t, 2, m.Snapshot().EarlyTransactionFrames)

	// A later commit past the window releases the counter.
	clock.Advance(2 * time.Millisecond)
	_, _ = m.OnTransactionCommit()

	_, changed = m.OnDisplayRefresh(false)
	assert.True(t, changed)
	assert.Equal(t, 1, m.Snapshot().EarlyTransactionFrames)
}

func TestGpuCompositionExtendsAndDecays(t *testing.T) {
	m, _, _ := newTestModulator(t)

	config, changed := m.OnDisplayRefresh(true)
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.EarlyGpu, config)
	assert.Equal(t, 2, m.Snapshot().EarlyGpuFrames)

	// Another GPU frame replenishes rather than stacks.
	_, _ = m.OnDisplayRefresh(true)
	assert.Equal(t, 2, m.Snapshot().EarlyGpuFrames)

	config, changed = m.OnDisplayRefresh(false)
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.EarlyGpu, config)

	config, changed = m.OnDisplayRefresh(false)
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Late, config)

	_, changed = m.OnDisplayRefresh(false)
	assert.False(t, changed)
}

func TestEarlyOutranksEarlyGpu(t *testing.T) {
	m, _, _ := newTestModulator(t)

	_, _ = m.OnDisplayRefresh(true)
	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")

	assert.Equal(t, VsyncConfigEarly, m.NextVsyncConfigType())
	assert.Equal(t, testConfigSet.Early, m.GetVsyncConfig())
}

func TestRefreshRateChangeTogglesAreIdempotent(t *testing.T) {
	m, _, _ := newTestModulator(t)

	config, changed := m.OnRefreshRateChangeInitiated()
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Early, config)

	_, changed = m.OnRefreshRateChangeInitiated()
	assert.False(t, changed)

	config, changed = m.OnRefreshRateChangeCompleted()
	assert.True(t, changed)
	assert.Equal(t, testConfigSet.Late, config)

	_, changed = m.OnRefreshRateChangeCompleted()
	assert.False(t, changed)
}

func TestClientDeathDropsOutstandingRequest(t *testing.T) {
	m, registry, _ := newTestModulator(t)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-b")
	require.True(t, m.IsVsyncConfigEarly())

	registry.NotifyDeath("client-a")
	assert.True(t, m.IsVsyncConfigEarly())
	assert.Equal(t, 1, m.Snapshot().EarlyWakeupRequests)

	registry.NotifyDeath("client-b")
	assert.Equal(t, 0, m.Snapshot().EarlyWakeupRequests)
	// Death does not replenish the hysteresis counter the way a clean
	// early-end does, so the selection falls straight back to late.
	assert.Equal(t, VsyncConfigLate, m.NextVsyncConfigType())
}

func TestDeathNotificationForUnknownHandleIsIgnored(t *testing.T) {
	m, registry, _ := newTestModulator(t)

	registry.NotifyDeath("never-registered")
	assert.Equal(t, VsyncConfigLate, m.NextVsyncConfigType())
}

func TestSetVsyncConfigSetRecomputes(t *testing.T) {
	m, _, _ := newTestModulator(t)

	replacement := VsyncConfigSet{
		Early:    VsyncConfig{AppWorkDuration: 8 * time.Millisecond, SfWorkDuration: 8 * time.Millisecond},
		EarlyGpu: VsyncConfig{AppWorkDuration: 8 * time.Millisecond, SfWorkDuration: 4 * time.Millisecond},
		Late:     VsyncConfig{AppWorkDuration: 20 * time.Millisecond, SfWorkDuration: 18 * time.Millisecond},
	}

	config := m.SetVsyncConfigSet(replacement)
	assert.Equal(t, replacement.Late, config)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	assert.Equal(t, replacement.Early, m.GetVsyncConfig())
}

func TestTracerReceivesSnapshots(t *testing.T) {
	clock := newFakeClock()
	tracer := &recordingTracer{}
	m := NewVsyncModulator(testConfigSet, DefaultConfig(), nil, tracer, clock.Now)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")

	snapshots := tracer.Snapshots()
	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, VsyncConfigEarly, last.ConfigType)
	assert.Equal(t, 1, last.EarlyWakeupRequests)
}

func TestInvalidConfigFallsBackToDefaults(t *testing.T) {
	bad := Config{MinEarlyTransactionFrames: -1}
	m := NewVsyncModulator(testConfigSet, bad, nil, NopTracer{}, nil)

	_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, "client-a")
	_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, "client-a")
	assert.Equal(t, DefaultConfig().MinEarlyTransactionFrames, m.Snapshot().EarlyTransactionFrames)
}

func TestConcurrentMutatorsAndReaders(t *testing.T) {
	m, registry, clock := newTestModulator(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		handle := ClientHandle(string(rune('a' + i)))
		wg.Add(4)
		go func() {
			defer wg.Done()
			_, _ = m.SetTransactionSchedule(ScheduleEarlyStart, handle)
			_, _ = m.SetTransactionSchedule(ScheduleEarlyEnd, handle)
		}()
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_, _ = m.OnTransactionCommit()
			_, _ = m.OnDisplayRefresh(false)
		}()
		go func() {
			defer wg.Done()
			_, _ = m.OnRefreshRateChangeInitiated()
			_, _ = m.OnRefreshRateChangeCompleted()
		}()
		go func() {
			defer wg.Done()
			_ = m.GetVsyncConfig()
			_ = m.IsVsyncConfigEarly()
			registry.NotifyDeath(handle)
		}()
	}
	wg.Wait()

	// Whatever the interleaving, the cached config is one of the three
	// presets in the active set.
	config := m.GetVsyncConfig()
	assert.Contains(t, []VsyncConfig{testConfigSet.Early, testConfigSet.EarlyGpu, testConfigSet.Late}, config)
}

// recordingTracer captures snapshots for assertions.
type recordingTracer struct {
	mu        sync.Mutex
	snapshots []TraceSnapshot
}

func (r *recordingTracer) TraceVsyncConfig(s TraceSnapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

func (r *recordingTracer) Snapshots() []TraceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceSnapshot(nil), r.snapshots...)
}
