// Package achievements counts player actions broadcast on afterUserAction and
// unlocks an achievement when a count reaches its threshold.
package achievements

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modhooks"
	"github.com/go-chi/chi/v5"
)

// ID is the module identifier.
const ID = "achievements"

// Plugin is the achievements module.
type Plugin struct {
	*modhooks.BasePlugin

	threshold int

	mu       sync.Mutex
	counts   map[string]int
	unlocked []string
}

// New returns an unconfigured achievements plugin.
func New() modhooks.Plugin {
	return &Plugin{
		BasePlugin: modhooks.NewBasePlugin(ID),
		counts:     make(map[string]int),
	}
}

// Initialize reads threshold.
func (p *Plugin) Initialize(config map[string]any) error {
	if err := p.BasePlugin.Initialize(config); err != nil {
		return err
	}
	p.threshold = max(p.ConfigInt("threshold", 3), 1)
	return nil
}

// RegisterHooks implements modhooks.Plugin.
func (p *Plugin) RegisterHooks(hooks *modhooks.HookRegistry) error {
	p.Bind(hooks)
	return modhooks.RegisterAction(hooks, p.BasePlugin, modhooks.HookAfterUserAction, 100, p.record)
}

// Describe implements modhooks.Describer.
func (p *Plugin) Describe() string {
	return "Unlocks achievements for repeated actions"
}

func (p *Plugin) record(_ context.Context, action modhooks.UserAction) error {
	if action.Action == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[action.Action]++
	if p.counts[action.Action] == p.threshold {
		p.unlocked = append(p.unlocked, action.Action)
	}
	return nil
}

// Counts returns the number of actions seen per action type.
func (p *Plugin) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.counts)
}

// Unlocked returns the action types whose threshold was reached, in unlock
// order.
func (p *Plugin) Unlocked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.unlocked)
}

// Routes implements modhooks.RouteProvider.
func (p *Plugin) Routes(r chi.Router) {
	r.Get("/achievements", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"counts":   p.Counts(),
			"unlocked": p.Unlocked(),
		})
	})
}
