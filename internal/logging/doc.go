// Package logging provides structured logging for ranger components.
//
// It wraps log/slog to emit JSON records with persistent attributes
// (component, binding, command). The level is held in a slog.LevelVar so a
// configuration reload can change it while the process runs.
//
// Output goes to stderr unless a file is configured, in which case records are
// written through a size-rotated lumberjack sink:
//
//	logger, err := logging.NewLogger(logging.Options{
//	    Level: "DEBUG",
//	    File:  "/var/log/ranger/ranger.log",
//	})
//	defer logger.Close()
//	logger.WithComponent("worker").Info("worker started")
//
// For testing, use [NopLogger] to discard all output, or [NewWriterLogger]
// to capture it.
package logging
