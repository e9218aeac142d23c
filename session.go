package compositor

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/framepace/compositor/internal/scheduler"
)

// ClientSession is one connected compositor client. Its handle identifies
// the client's early-wakeup requests inside the modulator; when the
// connection dies the liveness registry retires them.
type ClientSession struct {
	handle      scheduler.ClientHandle
	modulator   *scheduler.VsyncModulator
	displayLoop *DisplayLoop
	logger      zerolog.Logger
}

// NewClientSession mints a session with a fresh client handle.
func NewClientSession(modulator *scheduler.VsyncModulator, displayLoop *DisplayLoop) *ClientSession {
	handle := scheduler.ClientHandle(uuid.NewString())
	return &ClientSession{
		handle:      handle,
		modulator:   modulator,
		displayLoop: displayLoop,
		logger:      logger.With().Str("component", "client-session").Str("handle", string(handle)).Logger(),
	}
}

// Handle returns the session's client handle.
func (s *ClientSession) Handle() scheduler.ClientHandle {
	return s.handle
}
