package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process logger.
type Config struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

// New builds the process logger writing to w. An unknown level falls back to
// info.
func New(cfg Config, service string, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &logger
}

// NewStdout builds the process logger writing to standard output.
func NewStdout(cfg Config, service string) *zerolog.Logger {
	return New(cfg, service, os.Stdout)
}
