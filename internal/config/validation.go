package config

import (
	"fmt"
	"strings"
)

// Temperature bounds accepted for the default sampling temperature.
// Persona temperatures are clamped to the same range at the persona layer.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Validate checks the configuration for structural errors.
// It does not verify credentials; unreachable backends surface at call time.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidTemperature,
			c.Temperature, MinTemperature, MaxTemperature)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen address must not be empty", ErrInvalidListenAddr)
	}

	return nil
}
