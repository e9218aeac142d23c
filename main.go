package compositor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/framepace/compositor/internal/scheduler"
)

// Main wires the daemon together: modulator, display loop, event
// broadcaster and web surface, then waits for a shutdown signal.
func Main() {
	LoadConfig()

	if err := config.Input.Validate(); err != nil {
		logger.Warn().Err(err).Msg("invalid input dispatcher config, key repeat disabled")
		config.Input.KeyRepeatEnabled = false
	}

	registry := scheduler.NewLocalLivenessRegistry()
	modulator := scheduler.NewVsyncModulator(
		config.Modes[0].ConfigSet,
		config.Scheduler,
		registry,
		scheduler.PrometheusTracer{},
		nil,
	)

	backend := NewSimulatedBackend()
	displayLoop := NewDisplayLoop(modulator, backend, config.Modes)

	broadcaster := InitializePacingEventBroadcaster(modulator)
	displayLoop.OnConfigChange = broadcaster.BroadcastConfigChanged

	if err := displayLoop.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start display loop")
		os.Exit(1)
	}

	go RunWebServer(modulator, displayLoop, registry)

	logger.Info().
		Float64("refresh_rate", displayLoop.CurrentRefreshRate()).
		Str("listen_addr", config.ListenAddr).
		Msg("compositord started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info().Msg("compositord shutting down")
	displayLoop.Stop()
}
