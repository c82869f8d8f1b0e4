package feeders

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvFeeder reads environment variables named by `env` struct tags. Only
// variables that are set override the target; everything else keeps its
// current value.
type EnvFeeder struct {
	// Prefix is prepended to every variable name, e.g. "MODHOOKS_".
	Prefix string

	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// NewEnvFeeder creates an EnvFeeder over the process environment.
func NewEnvFeeder(prefix string) *EnvFeeder {
	return &EnvFeeder{Prefix: prefix}
}

// Feed populates target from the environment.
func (e *EnvFeeder) Feed(target any) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	opts := env.Options{Prefix: e.Prefix}
	if e.Environment != nil {
		opts.Environment = e.Environment
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
