package scheduler

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/framepace/compositor/internal/logging"
)

var ErrInvalidClientHandle = errors.New("invalid client handle")

// DeathFunc is invoked when a watched client handle dies. It may run on any
// thread; the registry never holds its own lock across the call.
type DeathFunc func(handle ClientHandle)

// LivenessRegistry watches remote client handles for death. The modulator
// registers a handle on an early-start request and cancels the watch on the
// matching early-end.
type LivenessRegistry interface {
	Register(handle ClientHandle, onDeath DeathFunc) error
	Cancel(handle ClientHandle)
}

// LocalLivenessRegistry is an in-process LivenessRegistry. The transport
// layer calls NotifyDeath when it loses the connection behind a handle.
type LocalLivenessRegistry struct {
	mu      sync.Mutex
	watches map[ClientHandle]DeathFunc
	logger  zerolog.Logger
}

// NewLocalLivenessRegistry creates an empty registry.
func NewLocalLivenessRegistry() *LocalLivenessRegistry {
	return &LocalLivenessRegistry{
		watches: make(map[ClientHandle]DeathFunc),
		logger:  logging.GetDefaultLogger().With().Str("component", "liveness-registry").Logger(),
	}
}

// Register starts watching a handle. Re-registering an already watched
// handle replaces its callback.
func (r *LocalLivenessRegistry) Register(handle ClientHandle, onDeath DeathFunc) error {
	if handle == "" || onDeath == nil {
		return ErrInvalidClientHandle
	}

	r.mu.Lock()
	r.watches[handle] = onDeath
	r.mu.Unlock()

	r.logger.Debug().Str("handle", string(handle)).Msg("death watch registered")
	return nil
}

// Cancel stops watching a handle. Cancelling an unwatched handle is a no-op.
func (r *LocalLivenessRegistry) Cancel(handle ClientHandle) {
	r.mu.Lock()
	_, existed := r.watches[handle]
	delete(r.watches, handle)
	r.mu.Unlock()

	if existed {
		r.logger.Debug().Str("handle", string(handle)).Msg("death watch cancelled")
	}
}

// NotifyDeath reports that a handle's client is gone. The callback runs on
// the caller's goroutine, outside the registry lock, so a callback is free
// to call back into Register or Cancel.
func (r *LocalLivenessRegistry) NotifyDeath(handle ClientHandle) {
	r.mu.Lock()
	onDeath, existed := r.watches[handle]
	delete(r.watches, handle)
	r.mu.Unlock()

	if !existed {
		return
	}

	r.logger.Info().Str("handle", string(handle)).Msg("client died, delivering death notification")
	onDeath(handle)
}

// WatchCount returns the number of handles currently watched.
func (r *LocalLivenessRegistry) WatchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}
