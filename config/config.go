// Package config loads the runtime configuration from an optional file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MODHOOKS_"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the runtime configuration.
type Config struct {
	// ModuleRoots are the directories scanned for module manifests.
	ModuleRoots []string `yaml:"module_roots" toml:"module_roots" json:"module_roots" env:"MODULE_ROOTS" envSeparator:","`

	// AutoInstall installs discovered modules whose manifest says
	// enabled: true and enables them on first boot.
	AutoInstall bool `yaml:"auto_install" toml:"auto_install" json:"auto_install" env:"AUTO_INSTALL"`

	// StrictHooks rejects handlers on hooks without a declared payload type.
	StrictHooks bool `yaml:"strict_hooks" toml:"strict_hooks" json:"strict_hooks" env:"STRICT_HOOKS"`

	Store  StoreConfig  `yaml:"store" toml:"store" json:"store" envPrefix:"STORE_"`
	HTTP   HTTPConfig   `yaml:"http" toml:"http" json:"http" envPrefix:"HTTP_"`
	Rescan RescanConfig `yaml:"rescan" toml:"rescan" json:"rescan" envPrefix:"RESCAN_"`
	Log    LogConfig    `yaml:"log" toml:"log" json:"log" envPrefix:"LOG_"`
	Health HealthConfig `yaml:"health" toml:"health" json:"health" envPrefix:"HEALTH_"`

	// Modules holds per-module config overrides applied when AutoInstall
	// installs a module. Sections from several files are deep-merged.
	Modules map[string]map[string]any `yaml:"modules" toml:"modules" json:"modules"`
}

// StoreConfig selects where module state is persisted.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver" json:"driver" env:"DRIVER"`
	Path   string `yaml:"path" toml:"path" json:"path" env:"PATH"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr              string   `yaml:"addr" toml:"addr" json:"addr" env:"ADDR"`
	AdminPrefix       string   `yaml:"admin_prefix" toml:"admin_prefix" json:"admin_prefix" env:"ADMIN_PREFIX"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout" toml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
}

// RescanConfig enables automatic rediscovery of modules.
type RescanConfig struct {
	// Watch rescans when a module root changes on disk.
	Watch bool `yaml:"watch" toml:"watch" json:"watch" env:"WATCH"`

	// Debounce coalesces bursts of file events.
	Debounce Duration `yaml:"debounce" toml:"debounce" json:"debounce" env:"DEBOUNCE"`

	// Schedule is a standard five-field cron expression, or empty.
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule" env:"SCHEDULE"`
}

// HealthConfig tunes module health collection.
type HealthConfig struct {
	// Timeout bounds each module's health check.
	Timeout Duration `yaml:"timeout" toml:"timeout" json:"timeout" env:"TIMEOUT"`

	// Optional modules are reported but never make the runtime unready.
	Optional []string `yaml:"optional" toml:"optional" json:"optional" env:"OPTIONAL" envSeparator:","`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" json:"format" env:"FORMAT"`
}

// Default returns the configuration used for anything not set explicitly.
func Default() Config {
	return Config{
		ModuleRoots: []string{"modules"},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "modhooks.db",
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			AdminPrefix:       "/admin",
			ReadHeaderTimeout: Duration(5 * time.Second),
		},
		Rescan: RescanConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			Timeout: Duration(200 * time.Millisecond),
		},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if len(c.ModuleRoots) == 0 {
		fail("module_roots must name at least one directory")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			fail("store.path is required for the sqlite driver")
		}
	default:
		fail("unknown store.driver %q", c.Store.Driver)
	}
	if p := c.HTTP.AdminPrefix; p != "" && !strings.HasPrefix(p, "/") {
		fail("http.admin_prefix must start with /, got %q", p)
	}
	if c.Rescan.Debounce < 0 {
		fail("rescan.debounce must not be negative")
	}
	if c.Rescan.Schedule != "" {
		if _, err := cron.ParseStandard(c.Rescan.Schedule); err != nil {
			fail("rescan.schedule: %v", err)
		}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		fail("unknown log.level %q", c.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		fail("unknown log.format %q", c.Log.Format)
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string such as "500ms" in files
// and environment variables.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
