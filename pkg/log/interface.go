// Package log provides the structured logging interface used by the fitting engine.
//
// Loggers are passed to minimizers and the fit driver through functional
// options. The default implementation writes JSON through zerolog; tests use
// TestLogger to capture and inspect records.
//
// Example usage:
//
//	logger := log.New(os.Stderr, log.LevelInfo).With(
//	    log.MinimizerKey, "Levenberg-Marquardt",
//	    log.FunctionKey, "Gaussian",
//	)
//	logger.Info("Iteration finished",
//	    log.IterationKey, 3,
//	    log.CostKey, 0.125,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface with key-value fields.
//
// If the first field passed to a logging method is an error, it is recorded
// under ErrorKey together with its stack trace when one is attached.
type Logger interface {
	// Debug logs per-iteration diagnostics such as step sizes and damping.
	Debug(msg string, fields ...any)

	// Info logs fit lifecycle events.
	Info(msg string, fields ...any)

	// Warn logs recoverable conditions, for example a fit that did not converge.
	Warn(msg string, fields ...any)

	// Error logs failures.
	//
	// Example:
	//   logger.Error("Minimizer failed",
	//       err,
	//       log.MinimizerKey, "BFGS",
	//   )
	Error(msg string, fields ...any)

	// With returns a Logger that adds the given fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	// Use it to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level. Values are compatible with slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
