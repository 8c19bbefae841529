// Package logging wraps zerolog with the console writer and leveled
// output the rest of the service expects from a package-level Log.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger, initialized by Init.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Init configures the global logger's level from a string such as
// "debug", "info", "warn", "error". Unknown values fall back to info.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// WithComponent returns a child logger tagged with a component field,
// used by each in-scope component to scope its own log lines.
func WithComponent(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Exchange returns a child logger tagged with exchange/market fields,
// matching the structured fields error handling requires (error_type,
// exchange, market, symbol, connection_id where applicable).
func Exchange(exchange, market string) zerolog.Logger {
	return Log.With().Str("exchange", exchange).Str("market", market).Logger()
}
