// Package modhooks provides the plugin discovery and hook-dispatch runtime for
// feature modules of a browser game.
//
// Feature modules (combat, bounties, casinos, ...) never reference each other.
// They attach behaviour to named extension points on a HookRegistry and the
// runtime walks those extension points in priority order:
//
//	hooks := modhooks.NewHookRegistry(modhooks.WithHookLogger(logger))
//	modhooks.AddFilter(hooks, "greet", 10, func(ctx context.Context, s string) (string, error) {
//		return s + "-A", nil
//	})
//	out, err := modhooks.ApplyFilter(ctx, hooks, "greet", "hi")
//
// Module discovery, persisted state and the install/enable/disable/uninstall
// state machine live in the manifest, registry, store and lifecycle packages;
// boot wires them together.
package modhooks

import (
	"slices"
)

// ModuleDescriptor is the declaration of a module read from its manifest.
type ModuleDescriptor struct {
	// ID is the unique, stable module identifier, e.g. "combat".
	ID string `json:"id"`

	// Name is the human readable module name.
	Name string `json:"name"`

	// Version of the module, semver-like.
	Version string `json:"version"`

	// Namespace is the declared namespace. It defaults to ID.
	Namespace string `json:"namespace,omitempty"`

	Description string `json:"description,omitempty"`

	// Location is the directory the manifest was read from.
	Location string `json:"location,omitempty"`

	// ManifestPath is the manifest file itself.
	ManifestPath string `json:"manifestPath,omitempty"`

	// Format is the manifest encoding: json, yaml, toml or hcl.
	Format string `json:"format,omitempty"`

	// Enabled is the module's default state when it is first seen.
	// Persisted state always wins once the module is installed.
	Enabled bool `json:"enabled"`

	// Config is free-form module configuration.
	Config map[string]any `json:"config,omitempty"`

	// Dependencies are identifiers of modules that must be enabled first.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Clone returns a deep copy of the descriptor's mutable fields.
func (d ModuleDescriptor) Clone() ModuleDescriptor {
	d.Config = CloneConfig(d.Config)
	d.Dependencies = slices.Clone(d.Dependencies)
	return d
}

// DependsOn reports whether id is a declared dependency.
func (d ModuleDescriptor) DependsOn(id string) bool {
	return slices.Contains(d.Dependencies, id)
}

// State is the lifecycle state of a module.
type State string

const (
	StateDiscovered  State = "discovered"
	StateInstalled   State = "installed"
	StateEnabled     State = "enabled"
	StateDisabled    State = "disabled"
	StateUninstalled State = "uninstalled"
)

// CloneConfig copies a config map, recursing into nested maps and slices so
// callers never share mutable state.
func CloneConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneConfig(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// MergeConfig returns base overlaid with overrides. Nested maps are merged
// key by key; any other override value replaces the base value.
func MergeConfig(base, overrides map[string]any) map[string]any {
	out := CloneConfig(base)
	if out == nil {
		out = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		if om, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = MergeConfig(bm, om)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}
