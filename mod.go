// Package chainblog implements a client for a blog application whose posts
// live as applications on an Algorand-compatible ledger.
//
// The root package holds the global logger and the list of Prometheus
// collectors that the components register. The log level is set with the
// LLVL environment variable.
package chainblog

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).Level(levelFromEnv()).
	With().Timestamp().Logger().
	With().Caller().Logger()

// PromCollectors exposes the Prometheus collectors created by the components.
// It is the responsibility of the surface that exposes the metrics to register
// them.
var PromCollectors []prometheus.Collector

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv(EnvLogLevel)) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "none":
		return zerolog.Disabled
	default:
		return defaultLevel
	}
}
