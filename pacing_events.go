package compositor

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/framepace/compositor/internal/scheduler"
)

// PacingEventType represents different types of pacing events
type PacingEventType string

const (
	PacingEventConfigChanged PacingEventType = "vsync-config-changed"
	PacingEventStateUpdate   PacingEventType = "pacing-state-update"
)

// PacingEvent represents a WebSocket pacing event
type PacingEvent struct {
	Type PacingEventType `json:"type"`
	Data interface{}     `json:"data"`
}

// VsyncConfigData describes the active preset in a transport-friendly form.
type VsyncConfigData struct {
	ConfigType      string `json:"config_type"`
	AppWorkDuration string `json:"app_work_duration"`
	SfWorkDuration  string `json:"sf_work_duration"`
}

// PacingStateData carries the modulator's observable state.
type PacingStateData struct {
	ConfigType               string `json:"config_type"`
	EarlyWakeupRequests      int    `json:"early_wakeup_requests"`
	EarlyTransactionFrames   int    `json:"early_transaction_frames"`
	EarlyGpuFrames           int    `json:"early_gpu_frames"`
	RefreshRateChangePending bool   `json:"refresh_rate_change_pending"`
}

// PacingEventSubscriber represents a WebSocket connection subscribed to
// pacing events
type PacingEventSubscriber struct {
	conn   *websocket.Conn
	ctx    context.Context
	logger *zerolog.Logger
}

// PacingEventBroadcaster manages pacing event subscriptions and broadcasting
type PacingEventBroadcaster struct {
	subscribers map[string]*PacingEventSubscriber
	mutex       sync.RWMutex
	modulator   *scheduler.VsyncModulator
	logger      *zerolog.Logger
}

var (
	pacingEventBroadcaster *PacingEventBroadcaster
	pacingEventOnce        sync.Once
)

// InitializePacingEventBroadcaster initializes the global pacing event
// broadcaster around the given modulator.
func InitializePacingEventBroadcaster(modulator *scheduler.VsyncModulator) *PacingEventBroadcaster {
	pacingEventOnce.Do(func() {
		l := logger.With().Str("component", "pacing-events").Logger()
		pacingEventBroadcaster = &PacingEventBroadcaster{
			subscribers: make(map[string]*PacingEventSubscriber),
			modulator:   modulator,
			logger:      &l,
		}

		go pacingEventBroadcaster.startStateBroadcasting()
	})
	return pacingEventBroadcaster
}

// GetPacingEventBroadcaster returns the singleton broadcaster, or nil if it
// has not been initialized yet.
func GetPacingEventBroadcaster() *PacingEventBroadcaster {
	return pacingEventBroadcaster
}

// Subscribe adds a WebSocket connection to receive pacing events
func (peb *PacingEventBroadcaster) Subscribe(connectionID string, conn *websocket.Conn, ctx context.Context, logger *zerolog.Logger) {
	peb.mutex.Lock()
	defer peb.mutex.Unlock()

	peb.subscribers[connectionID] = &PacingEventSubscriber{
		conn:   conn,
		ctx:    ctx,
		logger: logger,
	}

	peb.logger.Info().Str("connectionID", connectionID).Msg("pacing events subscription added")

	// Send initial state to new subscriber
	go peb.sendInitialState(connectionID)
}

// Unsubscribe removes a WebSocket connection from pacing events
func (peb *PacingEventBroadcaster) Unsubscribe(connectionID string) {
	peb.mutex.Lock()
	defer peb.mutex.Unlock()

	delete(peb.subscribers, connectionID)
	peb.logger.Info().Str("connectionID", connectionID).Msg("pacing events subscription removed")
}

// SubscriberCount returns the number of active subscriptions.
func (peb *PacingEventBroadcaster) SubscriberCount() int {
	peb.mutex.RLock()
	defer peb.mutex.RUnlock()
	return len(peb.subscribers)
}

// BroadcastConfigChanged broadcasts a newly selected vsync config.
func (peb *PacingEventBroadcaster) BroadcastConfigChanged(config scheduler.VsyncConfig) {
	snapshot := peb.modulator.Snapshot()
	event := PacingEvent{
		Type: PacingEventConfigChanged,
		Data: VsyncConfigData{
			ConfigType:      snapshot.ConfigType.String(),
			AppWorkDuration: config.AppWorkDuration.String(),
			SfWorkDuration:  config.SfWorkDuration.String(),
		},
	}
	peb.broadcast(event)
}

// sendInitialState sends the current pacing state to a new subscriber
func (peb *PacingEventBroadcaster) sendInitialState(connectionID string) {
	peb.mutex.RLock()
	subscriber, exists := peb.subscribers[connectionID]
	peb.mutex.RUnlock()

	if !exists {
		return
	}

	snapshot := peb.modulator.Snapshot()
	peb.sendToSubscriber(subscriber, PacingEvent{
		Type: PacingEventConfigChanged,
		Data: VsyncConfigData{
			ConfigType:      snapshot.ConfigType.String(),
			AppWorkDuration: snapshot.CurrentConfig.AppWorkDuration.String(),
			SfWorkDuration:  snapshot.CurrentConfig.SfWorkDuration.String(),
		},
	})
	peb.sendToSubscriber(subscriber, stateUpdateEvent(snapshot))
}

// startStateBroadcasting periodically broadcasts the pacing state
func (peb *PacingEventBroadcaster) startStateBroadcasting() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		peb.mutex.RLock()
		subscriberCount := len(peb.subscribers)
		peb.mutex.RUnlock()

		// Only broadcast if there are subscribers
		if subscriberCount == 0 {
			continue
		}

		peb.broadcast(stateUpdateEvent(peb.modulator.Snapshot()))
	}
}

func stateUpdateEvent(snapshot scheduler.StateSnapshot) PacingEvent {
	return PacingEvent{
		Type: PacingEventStateUpdate,
		Data: PacingStateData{
			ConfigType:               snapshot.ConfigType.String(),
			EarlyWakeupRequests:      snapshot.EarlyWakeupRequests,
			EarlyTransactionFrames:   snapshot.EarlyTransactionFrames,
			EarlyGpuFrames:           snapshot.EarlyGpuFrames,
			RefreshRateChangePending: snapshot.RefreshRateChangePending,
		},
	}
}

// broadcast sends an event to all subscribers
func (peb *PacingEventBroadcaster) broadcast(event PacingEvent) {
	peb.mutex.RLock()
	defer peb.mutex.RUnlock()

	for connectionID, subscriber := range peb.subscribers {
		go func(id string, sub *PacingEventSubscriber) {
			if !peb.sendToSubscriber(sub, event) {
				// Remove failed subscriber
				peb.mutex.Lock()
				delete(peb.subscribers, id)
				peb.mutex.Unlock()
				peb.logger.Warn().Str("connectionID", id).Msg("removed failed pacing events subscriber")
			}
		}(connectionID, subscriber)
	}
}

// sendToSubscriber sends an event to a specific subscriber
func (peb *PacingEventBroadcaster) sendToSubscriber(subscriber *PacingEventSubscriber, event PacingEvent) bool {
	ctx, cancel := context.WithTimeout(subscriber.ctx, 5*time.Second)
	defer cancel()

	err := wsjson.Write(ctx, subscriber.conn, event)
	if err != nil {
		subscriber.logger.Warn().Err(err).Msg("failed to send pacing event to subscriber")
		return false
	}

	return true
}
