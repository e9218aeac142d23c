package compositor

import (
	"os"
	"time"

	"github.com/framepace/compositor/internal/input"
	"github.com/framepace/compositor/internal/logging"
	"github.com/framepace/compositor/internal/scheduler"
)

// DisplayMode pairs a refresh rate with the vsync preset set supplied for
// it. The modulator never computes offsets itself; these are the externally
// provided values it chooses between.
type DisplayMode struct {
	RefreshRate float64                  `json:"refresh_rate"`
	ConfigSet   scheduler.VsyncConfigSet `json:"config_set"`
}

// Period returns the frame interval of the mode.
func (m DisplayMode) Period() time.Duration {
	return time.Duration(float64(time.Second) / m.RefreshRate)
}

// Config is the daemon configuration.
type Config struct {
	ListenAddr string
	Modes      []DisplayMode
	Scheduler  scheduler.Config
	Input      input.DispatcherConfig
}

var config *Config

var logger = logging.GetSubsystemLogger("compositord")

// PresetsForRefreshRate derives a plausible default preset set from the
// frame period: early pacing targets the full period, GPU-assisted early
// pacing gives composition extra slack, and late pacing assumes the
// two-frame pipelined schedule.
func PresetsForRefreshRate(rate float64) scheduler.VsyncConfigSet {
	period := time.Duration(float64(time.Second) / rate)
	return scheduler.VsyncConfigSet{
		Early: scheduler.VsyncConfig{
			AppWorkDuration: period,
			SfWorkDuration:  period / 2,
		},
		EarlyGpu: scheduler.VsyncConfig{
			AppWorkDuration: period,
			SfWorkDuration:  period * 3 / 4,
		},
		Late: scheduler.VsyncConfig{
			AppWorkDuration: 2 * period,
			SfWorkDuration:  period - time.Millisecond,
		},
	}
}

// LoadConfig populates the daemon configuration with defaults plus
// environment overrides. Must be called before anything reads config.
func LoadConfig() {
	if config != nil {
		logger.Info().Msg("config already loaded, skipping")
		return
	}

	listenAddr := ":8090"
	if env := os.Getenv("FRAMEPACE_LISTEN_ADDR"); env != "" {
		listenAddr = env
	}

	config = &Config{
		ListenAddr: listenAddr,
		Modes: []DisplayMode{
			{RefreshRate: 60, ConfigSet: PresetsForRefreshRate(60)},
			{RefreshRate: 90, ConfigSet: PresetsForRefreshRate(90)},
			{RefreshRate: 120, ConfigSet: PresetsForRefreshRate(120)},
		},
		Scheduler: scheduler.DefaultConfig(),
		Input:     input.DefaultDispatcherConfig(),
	}
}
