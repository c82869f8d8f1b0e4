package config

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/feeders"
)

// Source describes one configuration source and whether it loaded.
type Source struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Location   string     `json:"location,omitempty"`
	Loaded     bool       `json:"loaded"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type source struct {
	info   Source
	feeder feeders.Feeder
}

// Loader applies defaults, then every added source in order, then the
// MODHOOKS_ environment, then validation.
type Loader struct {
	sources []*source
	prefix  string
}

// NewLoader creates a loader with no file sources.
func NewLoader() *Loader {
	return &Loader{prefix: EnvPrefix}
}

// AddFile adds a YAML, TOML or JSON file, chosen by extension.
func (l *Loader) AddFile(path string) error {
	f, err := feeders.ForFile(path)
	if err != nil {
		return err
	}
	l.sources = append(l.sources, &source{
		info:   Source{Name: "file", Type: fileType(f), Location: path},
		feeder: f,
	})
	return nil
}

// AddDotEnv adds a .env file read with the MODHOOKS_ prefix.
func (l *Loader) AddDotEnv(path string) {
	l.sources = append(l.sources, &source{
		info:   Source{Name: "dotenv", Type: "env", Location: path},
		feeder: feeders.NewDotEnvFeeder(path, l.prefix),
	})
}

// Load builds the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()
	env := &source{
		info:   Source{Name: "environment", Type: "env"},
		feeder: feeders.NewEnvFeeder(l.prefix),
	}
	for _, s := range append(l.sources, env) {
		if err := l.feed(s, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *Loader) feed(s *source, cfg *Config) error {
	base := mergeModules(nil, cfg.Modules)
	err := s.feeder.Feed(cfg)
	if err == nil {
		if kf, ok := s.feeder.(feeders.KeyFeeder); ok {
			var overrides map[string]map[string]any
			if err = kf.FeedKey(modulesKey, &overrides); err == nil {
				cfg.Modules = mergeModules(base, overrides)
			}
		}
	}
	now := time.Now()
	s.info.LastLoaded = &now
	s.info.Loaded = err == nil
	s.info.Error = ""
	if err != nil {
		s.info.Error = err.Error()
		return fmt.Errorf("load %s config %s: %w", s.info.Name, s.info.Location, err)
	}
	return nil
}

// modulesKey is the file section holding per-module config overrides.
const modulesKey = "modules"

// mergeModules deep-merges per-module overrides so a later file only
// replaces the keys it names.
func mergeModules(base, overrides map[string]map[string]any) map[string]map[string]any {
	if base == nil && overrides == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(base)+len(overrides))
	for id, cfg := range base {
		out[id] = modhooks.CloneConfig(cfg)
	}
	for id, cfg := range overrides {
		out[id] = modhooks.MergeConfig(out[id], cfg)
	}
	return out
}

// Sources describes the file sources added so far.
func (l *Loader) Sources() []Source {
	out := make([]Source, 0, len(l.sources))
	for _, s := range l.sources {
		out = append(out, s.info)
	}
	return out
}

func fileType(f feeders.Feeder) string {
	switch f.(type) {
	case *feeders.YAMLFeeder:
		return "yaml"
	case *feeders.TOMLFeeder:
		return "toml"
	default:
		return "json"
	}
}

// Load reads path, if not empty, overlays the environment and validates.
func Load(path string) (Config, error) {
	l := NewLoader()
	if path != "" {
		if err := l.AddFile(path); err != nil {
			return Config{}, err
		}
	}
	return l.Load()
}
