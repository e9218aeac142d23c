package scheduler

import (
	"errors"
	"time"
)

var (
	ErrInvalidHysteresisFrames = errors.New("invalid hysteresis frame count")
	ErrInvalidTransactionTime  = errors.New("invalid minimum early transaction time")
)

// Config holds the modulator's tuning constants. The defaults give a couple
// of frames of hysteresis, which is enough to absorb the tail of a closing
// transaction or a one-off GPU composition fallback.
type Config struct {
	// MinEarlyTransactionFrames is how many extra frames early pacing
	// persists after the last outstanding early-wakeup request closes.
	MinEarlyTransactionFrames int

	// MinEarlyGpuFrames is how many extra frames early-GPU pacing persists
	// after the last frame that used GPU composition.
	MinEarlyGpuFrames int

	// MinEarlyTransactionTime guards the transaction decay: the frame
	// counter only starts counting down once at least this much time has
	// passed between the early window opening and the last commit.
	MinEarlyTransactionTime time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MinEarlyTransactionFrames: 2,
		MinEarlyGpuFrames:         2,
		MinEarlyTransactionTime:   time.Millisecond,
	}
}

// Validate checks the tuning constants for values that would disable the
// hysteresis entirely or run the counters backwards.
func (c Config) Validate() error {
	if c.MinEarlyTransactionFrames < 0 || c.MinEarlyGpuFrames < 0 {
		return ErrInvalidHysteresisFrames
	}
	if c.MinEarlyTransactionTime < 0 {
		return ErrInvalidTransactionTime
	}
	return nil
}
