package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New constructs the process-wide zap logger. Local and test environments get
// the human-readable development encoder; everything else gets the JSON
// production encoder.
func New(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch env {
	case "local", "test":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
