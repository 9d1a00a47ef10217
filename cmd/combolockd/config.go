package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"combolock/internal/lock"
)

// Config is the top-level YAML configuration for combolockd.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. The file is the primary configuration surface; flags
// are small overrides on top of it.
type Config struct {
	// Dial and combination behavior
	Lock LockFileConfig `yaml:"lock"`

	// evdev pointer/touch devices
	Input InputConfig `yaml:"input"`

	// IPC (unix socket) input
	IPC IPCConfig `yaml:"ipc"`

	// HTTP API and state WebSocket
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LockFileConfig is the user-facing lock configuration. It maps to
// lock.Config but uses YAML-friendly types (settle in milliseconds).
type LockFileConfig struct {
	TickCount int    `yaml:"tick_count"`
	SettleMS  int    `yaml:"settle_ms"`
	Relock    string `yaml:"relock"` // "motion" or "reset"

	// Dial centre in input coordinates. Absolute touch devices report in
	// device units, so this usually needs to match the panel.
	OriginX float64 `yaml:"origin_x"`
	OriginY float64 `yaml:"origin_y"`

	// Combination pins the combination (demos, kiosks). Empty means a
	// random combination per lock lifetime.
	Combination []int `yaml:"combination,omitempty"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"` // evdev nodes to read; empty disables
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables
}

type HTTPConfig struct {
	Listen      string   `yaml:"listen"` // empty disables
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Lock: LockFileConfig{
			TickCount: lock.DefaultTickCount,
			SettleMS:  defaultSettleMS,
			Relock:    string(lock.RelockOnMotion),
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Listen:      defaultHTTPListen,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) and so is anything after
// the first document.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Decode into a node so KnownFields cannot turn a second document into
	// an unknown-field error that looks like the end of input.
	var rest yaml.Node
	if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values to apply on top of a loaded config. Each
// field is applied only if non-nil, even when it points to a zero value.
type FlagOverrides struct {
	TickCount *int
	SettleMS  *int
	Relock    *string

	InputDevice *string

	IPCSocketPath *string
	HTTPListen    *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.TickCount != nil {
		cfg.Lock.TickCount = *o.TickCount
	}
	if o.SettleMS != nil {
		cfg.Lock.SettleMS = *o.SettleMS
	}
	if o.Relock != nil {
		cfg.Lock.Relock = *o.Relock
	}

	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Lock
	if c.Lock.TickCount < 3 {
		return fmt.Errorf("lock.tick_count must be >= 3, got %d", c.Lock.TickCount)
	}
	if c.Lock.SettleMS < minSettleMS || c.Lock.SettleMS > maxSettleMS {
		return fmt.Errorf("lock.settle_ms must be between %d and %d", minSettleMS, maxSettleMS)
	}
	switch lock.RelockPolicy(c.Lock.Relock) {
	case lock.RelockOnMotion, lock.RelockOnReset:
	default:
		return fmt.Errorf("lock.relock must be %q or %q", lock.RelockOnMotion, lock.RelockOnReset)
	}
	if len(c.Lock.Combination) != 0 {
		combo, err := c.fixedCombination()
		if err != nil {
			return err
		}
		if err := combo.Validate(c.Lock.TickCount); err != nil {
			return fmt.Errorf("lock.combination: %w", err)
		}
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (c *Config) fixedCombination() (lock.Combination, error) {
	var combo lock.Combination
	if len(c.Lock.Combination) != len(combo) {
		return combo, fmt.Errorf("lock.combination must have %d numbers, got %d", len(combo), len(c.Lock.Combination))
	}
	copy(combo[:], c.Lock.Combination)
	return combo, nil
}

// ToLockConfig converts the file config into the pipeline's config.
func (c *Config) ToLockConfig() lock.Config {
	return lock.Config{
		TickCount: c.Lock.TickCount,
		Settle:    time.Duration(c.Lock.SettleMS) * time.Millisecond,
		Relock:    lock.RelockPolicy(c.Lock.Relock),
		Origin:    lock.Coordinate{X: c.Lock.OriginX, Y: c.Lock.OriginY},
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
