package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TraceSnapshot is the state emitted to the observability sink on every
// selection recomputation.
type TraceSnapshot struct {
	ConfigType               VsyncConfigType
	EarlyWakeupRequests      int
	EarlyTransactionFrames   int
	EarlyGpuFrames           int
	RefreshRateChangePending bool
}

// Tracer receives a snapshot whenever the active vsync config is recomputed.
// Tracing is diagnostic only; the modulator does not depend on it.
type Tracer interface {
	TraceVsyncConfig(snapshot TraceSnapshot)
}

var (
	vsyncConfigEarly = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_vsync_config_early",
			Help: "Whether the early vsync config is currently selected (0 or 1)",
		},
	)

	vsyncConfigEarlyGpu = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_vsync_config_early_gpu",
			Help: "Whether the early-GPU vsync config is currently selected (0 or 1)",
		},
	)

	vsyncConfigLate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_vsync_config_late",
			Help: "Whether the late vsync config is currently selected (0 or 1)",
		},
	)

	earlyWakeupRequestsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_early_wakeup_requests",
			Help: "Number of outstanding early-wakeup requests",
		},
	)

	earlyTransactionFramesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_early_transaction_frames",
			Help: "Remaining frames of early pacing after the last early window closed",
		},
	)

	earlyGpuFramesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_early_gpu_frames",
			Help: "Remaining frames of early-GPU pacing after the last GPU-composited frame",
		},
	)

	refreshRateChangePendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framepace_refresh_rate_change_pending",
			Help: "Whether a refresh rate transition is in flight (0 or 1)",
		},
	)

	vsyncConfigUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framepace_vsync_config_updates_total",
			Help: "Total number of vsync config recomputations",
		},
	)
)

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PrometheusTracer publishes trace snapshots as prometheus gauges.
type PrometheusTracer struct{}

func (PrometheusTracer) TraceVsyncConfig(s TraceSnapshot) {
	vsyncConfigEarly.Set(boolToFloat(s.ConfigType == VsyncConfigEarly))
	vsyncConfigEarlyGpu.Set(boolToFloat(s.ConfigType == VsyncConfigEarlyGpu))
	vsyncConfigLate.Set(boolToFloat(s.ConfigType == VsyncConfigLate))

	earlyWakeupRequestsGauge.Set(float64(s.EarlyWakeupRequests))
	earlyTransactionFramesGauge.Set(float64(s.EarlyTransactionFrames))
	earlyGpuFramesGauge.Set(float64(s.EarlyGpuFrames))
	refreshRateChangePendingGauge.Set(boolToFloat(s.RefreshRateChangePending))

	vsyncConfigUpdatesTotal.Inc()
}

// NopTracer discards all snapshots.
type NopTracer struct{}

func (NopTracer) TraceVsyncConfig(TraceSnapshot) {}
