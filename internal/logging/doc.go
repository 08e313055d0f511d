// Package logging provides structured logging for opcoord.
//
// [Logger] wraps log/slog with a JSON handler. Every coordination component
// accepts a Logger through a WithLogger option and falls back to
// [NopLogger], so tests stay silent unless they pass a real one.
//
// Child loggers carry persistent attributes:
//
//	logger, err := logging.NewLogger("/var/log/opcoord", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	guardLog := logger.WithComponent("guard")
//	guardLog.Warn("grant expired", "grant_id", id)
//
// File output goes through [RotatingWriter], which rotates by size and can
// gzip rotated files.
package logging
