// Package input holds static configuration for the input dispatch
// subsystem. The dispatcher itself lives outside this repo; these values
// are handed to it at initialization and never change afterwards.
package input

import (
	"errors"
	"time"
)

var (
	ErrInvalidKeyRepeatTimeout = errors.New("invalid key repeat timeout")
	ErrInvalidKeyRepeatDelay   = errors.New("invalid key repeat delay")
)

// DispatcherConfig modifies the behavior of the input dispatcher. The
// defaults here are fallbacks; production values come from the platform's
// view configuration.
type DispatcherConfig struct {
	// KeyRepeatTimeout is how long a key must stay held before repeating.
	KeyRepeatTimeout time.Duration `json:"key_repeat_timeout"`

	// KeyRepeatDelay is the delay between repeated key events.
	KeyRepeatDelay time.Duration `json:"key_repeat_delay"`

	// KeyRepeatEnabled turns key repeat off entirely when false.
	KeyRepeatEnabled bool `json:"key_repeat_enabled"`
}

// DefaultDispatcherConfig returns the fallback configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		KeyRepeatTimeout: 500 * time.Millisecond,
		KeyRepeatDelay:   50 * time.Millisecond,
		KeyRepeatEnabled: true,
	}
}

// Validate rejects configurations the dispatcher cannot run with. Repeat
// timings only matter while key repeat is enabled.
func (c DispatcherConfig) Validate() error {
	if !c.KeyRepeatEnabled {
		return nil
	}
	if c.KeyRepeatTimeout <= 0 {
		return ErrInvalidKeyRepeatTimeout
	}
	if c.KeyRepeatDelay <= 0 {
		return ErrInvalidKeyRepeatDelay
	}
	return nil
}
