package compositor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/framepace/compositor/internal/logging"
	"github.com/framepace/compositor/internal/scheduler"
)

var (
	ErrDisplayLoopRunning     = errors.New("display loop already running")
	ErrUnsupportedRefreshRate = errors.New("unsupported refresh rate")
)

// CompositionBackend is the composition pipeline the loop drives. It
// composites one frame against the given timing config and reports whether
// the GPU-accelerated path was used.
type CompositionBackend interface {
	ComposeFrame(config scheduler.VsyncConfig) (usedGpuComposition bool)
}

// DisplayLoop is the single display-refresh thread. Once per frame it lets
// the backend composite, feeds the composition path back into the
// modulator's decay logic, and hands any newly selected config to the next
// frame. Refresh rate switches are serialized onto the same goroutine so
// the modulator sees initiated/completed pairs in order.
type DisplayLoop struct {
	frameCount int64 // atomic

	modulator *scheduler.VsyncModulator
	backend   CompositionBackend
	modes     []DisplayMode
	logger    zerolog.Logger

	// OnConfigChange, when set before Start, is invoked from the refresh
	// thread whenever a frame's decay step changed the selection.
	OnConfigChange func(config scheduler.VsyncConfig)

	rateRequests chan int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running int32

	modeIndex int32 // atomic, index into modes
}

// NewDisplayLoop creates a loop starting in the first of the given modes.
func NewDisplayLoop(modulator *scheduler.VsyncModulator, backend CompositionBackend, modes []DisplayMode) *DisplayLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &DisplayLoop{
		modulator:    modulator,
		backend:      backend,
		modes:        modes,
		logger:       logging.GetDefaultLogger().With().Str("component", "display-loop").Logger(),
		rateRequests: make(chan int, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the refresh loop.
func (dl *DisplayLoop) Start() error {
	if !atomic.CompareAndSwapInt32(&dl.running, 0, 1) {
		return ErrDisplayLoopRunning
	}

	// The starting mode supplies the initial preset set.
	mode := dl.modes[atomic.LoadInt32(&dl.modeIndex)]
	dl.modulator.SetVsyncConfigSet(mode.ConfigSet)

	dl.wg.Add(1)
	go dl.refreshLoop()

	dl.logger.Info().Float64("refresh_rate", mode.RefreshRate).Msg("display loop started")
	return nil
}

// Stop halts the refresh loop and waits for it to drain.
func (dl *DisplayLoop) Stop() {
	if !atomic.CompareAndSwapInt32(&dl.running, 1, 0) {
		return
	}
	dl.cancel()
	dl.wg.Wait()
	dl.logger.Info().Msg("display loop stopped")
}

// IsRunning reports whether the refresh loop is active.
func (dl *DisplayLoop) IsRunning() bool {
	return atomic.LoadInt32(&dl.running) == 1
}

// FrameCount returns the number of frames displayed since start.
func (dl *DisplayLoop) FrameCount() int64 {
	return atomic.LoadInt64(&dl.frameCount)
}

// CurrentRefreshRate returns the active mode's refresh rate.
func (dl *DisplayLoop) CurrentRefreshRate() float64 {
	return dl.modes[atomic.LoadInt32(&dl.modeIndex)].RefreshRate
}

// SetRefreshRate requests a switch to the mode with the given rate. The
// switch happens on the refresh thread; only one may be queued at a time.
func (dl *DisplayLoop) SetRefreshRate(rate float64) error {
	for i, mode := range dl.modes {
		if mode.RefreshRate == rate {
			select {
			case dl.rateRequests <- i:
				return nil
			default:
				return errors.New("refresh rate change already queued")
			}
		}
	}
	return ErrUnsupportedRefreshRate
}

func (dl *DisplayLoop) refreshLoop() {
	defer dl.wg.Done()

	mode := dl.modes[atomic.LoadInt32(&dl.modeIndex)]
	ticker := time.NewTicker(mode.Period())
	defer ticker.Stop()

	for {
		select {
		case <-dl.ctx.Done():
			return

		case next := <-dl.rateRequests:
			dl.switchMode(next, ticker)

		case <-ticker.C:
			dl.displayFrame()
		}
	}
}

func (dl *DisplayLoop) displayFrame() {
	config := dl.modulator.GetVsyncConfig()
	usedGpu := dl.backend.ComposeFrame(config)
	atomic.AddInt64(&dl.frameCount, 1)

	if newConfig, changed := dl.modulator.OnDisplayRefresh(usedGpu); changed {
		dl.logger.Debug().
			Dur("app_work", newConfig.AppWorkDuration).
			Dur("sf_work", newConfig.SfWorkDuration).
			Bool("used_gpu", usedGpu).
			Msg("vsync config changed")
		if dl.OnConfigChange != nil {
			dl.OnConfigChange(newConfig)
		}
	}
}

func (dl *DisplayLoop) switchMode(next int, ticker *time.Ticker) {
	from := dl.modes[atomic.LoadInt32(&dl.modeIndex)]
	to := dl.modes[next]

	_, _ = dl.modulator.OnRefreshRateChangeInitiated()
	ticker.Reset(to.Period())
	atomic.StoreInt32(&dl.modeIndex, int32(next))
	dl.modulator.SetVsyncConfigSet(to.ConfigSet)
	newConfig, changed := dl.modulator.OnRefreshRateChangeCompleted()

	dl.logger.Info().
		Float64("from", from.RefreshRate).
		Float64("to", to.RefreshRate).
		Msg("refresh rate changed")

	if changed && dl.OnConfigChange != nil {
		dl.OnConfigChange(newConfig)
	}
}

// SimulatedBackend is a composition backend for development and tests. The
// GPU path is toggled externally; real deployments wire the actual
// compositor here.
type SimulatedBackend struct {
	framesComposed int64 // atomic
	gpuComposition int32 // atomic
}

// NewSimulatedBackend creates a backend starting on the non-GPU path.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{}
}

// SetGpuComposition switches the path reported for subsequent frames.
func (b *SimulatedBackend) SetGpuComposition(used bool) {
	var v int32
	if used {
		v = 1
	}
	atomic.StoreInt32(&b.gpuComposition, v)
}

// ComposeFrame pretends to composite one frame.
func (b *SimulatedBackend) ComposeFrame(scheduler.VsyncConfig) bool {
	atomic.AddInt64(&b.framesComposed, 1)
	return atomic.LoadInt32(&b.gpuComposition) == 1
}

// FramesComposed returns the number of frames composited.
func (b *SimulatedBackend) FramesComposed() int64 {
	return atomic.LoadInt64(&b.framesComposed)
}
