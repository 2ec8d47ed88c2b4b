// Package config provides configuration loading and management for spineforge.
// It handles loading configuration from YAML files and environment variables
// and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	yamlv3 "gopkg.in/yaml.v3"

	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
)

// EnvPrefix prefixes every environment override; "__" separates sections,
// e.g. SPINEFORGE_MEASUREMENT__FACING=right
const EnvPrefix = "SPINEFORGE_"

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the application configuration
type Config struct {
	// Measurement parameters
	Measurement struct {
		// Facing is the side the patient faces on the image: left or right
		Facing string `yaml:"facing" koanf:"facing"`

		// PIToleranceDeg is the largest accepted gap between the two PI derivations
		PIToleranceDeg float64 `yaml:"pi_tolerance_deg" koanf:"pi_tolerance_deg"`
	} `yaml:"measurement" koanf:"measurement"`

	// Calibration used when the image carries no pixel spacing
	Calibration struct {
		// RowSpacingMM and ColSpacingMM are mm per pixel; zero means unscaled
		RowSpacingMM float64 `yaml:"row_spacing_mm" koanf:"row_spacing_mm"`
		ColSpacingMM float64 `yaml:"col_spacing_mm" koanf:"col_spacing_mm"`
	} `yaml:"calibration" koanf:"calibration"`

	// Output parameters
	Output struct {
		// Precision is the number of decimals shown for every value
		Precision int `yaml:"precision" koanf:"precision"`

		// Verbose prints the landmark table along with the measurements
		Verbose bool `yaml:"verbose" koanf:"verbose"`

		// LogLevel is a logrus level name
		LogLevel string `yaml:"log_level" koanf:"log_level"`
	} `yaml:"output" koanf:"output"`

	// Metrics parameters
	Metrics struct {
		// TextfilePath receives a Prometheus text dump after each run when set
		TextfilePath string `yaml:"textfile_path" koanf:"textfile_path"`
	} `yaml:"metrics" koanf:"metrics"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Measurement.Facing = geometry.FacingLeft.String()
	cfg.Measurement.PIToleranceDeg = 1.0

	// Unscaled until an image or the user provides a spacing
	cfg.Calibration.RowSpacingMM = 0
	cfg.Calibration.ColSpacingMM = 0

	cfg.Output.Precision = 2
	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration by layering defaults, the YAML file at
// configPath (skipped if it doesn't exist) and SPINEFORGE_ environment variables
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// SPINEFORGE_OUTPUT__LOG_LEVEL -> output.log_level
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if _, err := geometry.ParseFacing(c.Measurement.Facing); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Measurement.PIToleranceDeg < 0 {
		return fmt.Errorf("%w: pi_tolerance_deg must not be negative", ErrInvalidConfig)
	}
	row, col := c.Calibration.RowSpacingMM, c.Calibration.ColSpacingMM
	if row < 0 || col < 0 || (row == 0) != (col == 0) {
		return fmt.Errorf("%w: spacings must both be positive or both be zero", ErrInvalidConfig)
	}
	if c.Output.Precision < 0 || c.Output.Precision > 10 {
		return fmt.Errorf("%w: precision %d out of range 0-10", ErrInvalidConfig, c.Output.Precision)
	}
	if _, err := logrus.ParseLevel(c.Output.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Facing returns the parsed patient facing
func (c *Config) Facing() geometry.Facing {
	f, _ := geometry.ParseFacing(c.Measurement.Facing)
	return f
}

// DefaultCalibration returns the configured fallback calibration,
// or the unscaled calibration when none is configured
func (c *Config) DefaultCalibration() calibration.Calibration {
	if c.Calibration.RowSpacingMM == 0 && c.Calibration.ColSpacingMM == 0 {
		return calibration.Unscaled()
	}
	cal, err := calibration.Manual(c.Calibration.RowSpacingMM, c.Calibration.ColSpacingMM)
	if err != nil {
		return calibration.Unscaled()
	}
	return cal
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
