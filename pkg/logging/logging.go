// Package logging wires zerolog the way ollama-distributed's
// pkg/logging/structured_logger.go does: one configured sink, per-component
// sub-loggers carrying a "component" field, no package-level global.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/config"
)

// New builds the root zerolog.Logger for a node from cfg.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a sub-logger tagged with the given component name, the
// convention every constructor in this module follows instead of threading
// raw loggers.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
