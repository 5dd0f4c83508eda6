package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger: "json" uses the production encoder,
// "console" the development one.
func NewLogger(c Log) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}

	var zc zap.Config
	switch c.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
	}
	zc.Level = level

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}
