// Package logger configures the process-wide structured logger used by both
// the coordinator and the presence node binaries.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, scoped to the current service.
var Log zerolog.Logger

// Initialize sets up the global logger with the given level and service
// name ("presence-coordinator" or "presence-node"). Pretty console output
// is used for local development; JSON output is used otherwise.
func Initialize(level, service string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", service).
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Ring returns a logger scoped to hash-ring/ownership events.
func Ring() *zerolog.Logger {
	l := Log.With().Str("component", "ring").Logger()
	return &l
}

// Directory returns a logger scoped to directory (Redis) events.
func Directory() *zerolog.Logger {
	l := Log.With().Str("component", "directory").Logger()
	return &l
}

// Bus returns a logger scoped to event-bus events.
func Bus() *zerolog.Logger {
	l := Log.With().Str("component", "bus").Logger()
	return &l
}

// Presence returns a logger scoped to presence-session events.
func Presence() *zerolog.Logger {
	l := Log.With().Str("component", "presence").Logger()
	return &l
}

// HTTP returns a logger scoped to HTTP request events.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
