package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/azizikri/loyalty-wallet/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service and
// instance from the config.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.KafkaInstanceID != "" {
		ctx = ctx.Str("instance", cfg.KafkaInstanceID)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
