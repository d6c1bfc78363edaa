package zlink

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// logger is the package-level structured logger.
// Set ZLINK_LOG=debug|info|warn|error to control verbosity at runtime.
// Default is warn so production binaries are silent.
var logger = func() zerolog.Logger {
	level := zerolog.WarnLevel
	if v := os.Getenv("ZLINK_LOG"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("app", "zlink").Logger()
}()

var initLoggerOnce sync.Once

// InitLogger switches the package logger to human-readable console
// output. It is an idempotent process-wide side effect; calling it more
// than once is a no-op. Level selection via ZLINK_LOG still applies.
func InitLogger() {
	initLoggerOnce.Do(func() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		logger = logger.Output(output)
	})
}

// safeCall runs fn and recovers any panic, returning it as an error.
// Every substrate-goroutine invocation of a host callback goes through
// it so one panicking handler cannot take down delivery for everyone.
func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("recover", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("panic in event callback")
			err = fmt.Errorf("panic in callback: %v", r)
		}
	}()
	fn()
	return nil
}
