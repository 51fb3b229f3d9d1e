// Package config holds the adapter and timing settings shared by all
// commands. Settings are read from an optional YAML file and may be
// overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// VirtualAdapter selects the in-process simulated bus.
const VirtualAdapter = "virtual"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Adapter Adapter `yaml:"adapter"`
	Timing  Timing  `yaml:"timing"`
}

type Adapter struct {
	Name         string  `yaml:"name"`
	Port         string  `yaml:"port"`
	Baudrate     int     `yaml:"baudrate"`
	CANRate      float64 `yaml:"canrate"`
	ExtendedID   bool    `yaml:"extended_id"`
	MinFirmware  string  `yaml:"min_firmware"`
	OpenAttempts int     `yaml:"open_attempts"`
}

type Timing struct {
	RequestDelay    time.Duration `yaml:"request_delay"`
	ServiceTimeout  time.Duration `yaml:"service_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

func Default() *Config {
	return &Config{
		Adapter: Adapter{
			Baudrate:     115200,
			CANRate:      500,
			OpenAttempts: 3,
		},
		Timing: Timing{
			RequestDelay:    10 * time.Millisecond,
			ServiceTimeout:  100 * time.Millisecond,
			ResponseTimeout: 250 * time.Millisecond,
		},
	}
}

// DefaultPath returns $HOME/.udsfuzz/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".udsfuzz", "config.yaml")
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	if err := c.Adapter.Validate(); err != nil {
		return err
	}
	t := c.Timing
	if t.RequestDelay < 0 || t.ServiceTimeout < 0 || t.ResponseTimeout < 0 {
		return fmt.Errorf("%w: timing values must not be negative", ErrInvalid)
	}
	return nil
}

func (a Adapter) Validate() error {
	if a.OpenAttempts < 1 {
		return fmt.Errorf("%w: open_attempts must be at least 1", ErrInvalid)
	}
	if a.MinFirmware != "" && !semver.IsValid(a.MinFirmware) {
		return fmt.Errorf("%w: min_firmware %q is not a semantic version", ErrInvalid, a.MinFirmware)
	}
	if a.Name == VirtualAdapter {
		return nil
	}
	if a.Baudrate < 0 || a.CANRate < 0 {
		return fmt.Errorf("%w: baudrate and canrate must not be negative", ErrInvalid)
	}
	return nil
}

// FirmwareSatisfies reports whether version meets the configured minimum.
func (a Adapter) FirmwareSatisfies(version string) bool {
	if a.MinFirmware == "" {
		return true
	}
	if !semver.IsValid(version) {
		return false
	}
	return semver.Compare(version, a.MinFirmware) >= 0
}
