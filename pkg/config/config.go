// Package config handles ecmavm.toml engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "ecmavm.toml"

// Config holds the tunables of one engine instance.
type Config struct {
	VM     VMConfig     `toml:"vm"`
	GC     GCConfig     `toml:"gc"`
	Script ScriptConfig `toml:"script"`
	Cache  CacheConfig  `toml:"cache"`
	Log    LogConfig    `toml:"log"`

	// Path is the file the configuration was loaded from (empty for defaults).
	Path string `toml:"-"`
}

// VMConfig bounds interpreter resources.
type VMConfig struct {
	MaxCallDepth int `toml:"max-call-depth"`
	StackSize    int `toml:"stack-size"`
	// InterruptCheckInterval is the number of instructions between
	// cancellation checks.
	InterruptCheckInterval int `toml:"interrupt-check-interval"`
	// RegExpTimeout bounds a single regular expression match; zero means
	// no limit.
	RegExpTimeout Duration `toml:"regexp-timeout"`
}

// GCConfig controls the tracing collector.
type GCConfig struct {
	Enabled bool `toml:"enabled"`
	// Threshold is the number of allocations between automatic collections.
	Threshold int `toml:"threshold"`
}

// ScriptConfig sets defaults for script execution.
type ScriptConfig struct {
	Strict  bool     `toml:"strict"`
	Timeout Duration `toml:"timeout"`
}

// CacheConfig enables the on-disk bytecode cache.
type CacheConfig struct {
	Dir string `toml:"dir"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Duration is a time.Duration decoded from strings such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			MaxCallDepth:           1000,
			StackSize:              1 << 16,
			InterruptCheckInterval: 1024,
		},
		GC: GCConfig{
			Enabled:   true,
			Threshold: 100_000,
		},
	}
}

// Load parses a configuration file, filling unset keys with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes TOML configuration data. name is used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), name)
	}
	c.Path = name
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir looking for ecmavm.toml. It returns
// the defaults when no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects values the VM cannot run with.
func (c *Config) Validate() error {
	if c.VM.MaxCallDepth <= 0 {
		return fmt.Errorf("vm.max-call-depth must be positive, got %d", c.VM.MaxCallDepth)
	}
	if c.VM.StackSize < 256 {
		return fmt.Errorf("vm.stack-size must be at least 256, got %d", c.VM.StackSize)
	}
	if c.VM.InterruptCheckInterval <= 0 {
		return fmt.Errorf("vm.interrupt-check-interval must be positive, got %d", c.VM.InterruptCheckInterval)
	}
	if c.GC.Threshold <= 0 {
		return fmt.Errorf("gc.threshold must be positive, got %d", c.GC.Threshold)
	}
	if c.Script.Timeout.Duration < 0 {
		return fmt.Errorf("script.timeout must not be negative")
	}
	return nil
}
