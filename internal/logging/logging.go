package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	loggerOnce    sync.Once
)

// GetDefaultLogger returns the process-wide logger. The log level is taken
// from the FRAMEPACE_LOG_LEVEL environment variable and defaults to info.
func GetDefaultLogger() zerolog.Logger {
	loggerOnce.Do(func() {
		level := zerolog.InfoLevel
		if env := os.Getenv("FRAMEPACE_LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
				level = parsed
			}
		}

		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}

		defaultLogger = zerolog.New(out).
			Level(level).
			With().
			Timestamp().
			Logger()
	})
	return defaultLogger
}

// GetSubsystemLogger returns a child logger tagged with a subsystem name.
func GetSubsystemLogger(subsystem string) zerolog.Logger {
	return GetDefaultLogger().With().Str("subsystem", subsystem).Logger()
}
