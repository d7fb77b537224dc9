// Package logging builds the worker's zap logger from its settings.
package logging

import (
	"fmt"

	"github.com/aescanero/patchwork/internal/config"
	"go.uber.org/zap"
)

// New builds a logger from the settings' logging document
func New(settings *config.Settings) (*zap.Logger, error) {
	cfg, err := settings.LoggerConfig()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// Component returns a child logger for a worker component
func Component(logger *zap.Logger, role, name string) *zap.Logger {
	if role == name {
		return logger.Named(name)
	}
	return logger.Named(role).With(zap.String("component", name))
}
