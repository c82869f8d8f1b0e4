package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModules struct {
	modules []lifecycle.ModuleStatus
	err     error
}

func (f fakeModules) ListModules(context.Context) ([]lifecycle.ModuleStatus, error) {
	return f.modules, f.err
}

func TestCollector_HookMetrics(t *testing.T) {
	hooks := modhooks.NewHookRegistry()
	_, err := modhooks.AddFilter(hooks, "greet", 1, func(_ context.Context, s string) (string, error) {
		return s, nil
	})
	require.NoError(t, err)
	_, err = modhooks.AddAction(hooks, "track", 1, func(context.Context, string) error {
		return errors.New("down")
	})
	require.NoError(t, err)
	_, _ = modhooks.ApplyFilter(context.Background(), hooks, "greet", "hi")
	_, _ = modhooks.ApplyFilter(context.Background(), hooks, "greet", "hi")
	modhooks.DoAction(context.Background(), hooks, "track", "x")

	c := NewCollector(hooks, nil, "", nil)
	expected := `
# HELP modhooks_hook_dispatches_total Filter and action dispatches per hook (cumulative)
# TYPE modhooks_hook_dispatches_total counter
modhooks_hook_dispatches_total{hook="greet"} 2
modhooks_hook_dispatches_total{hook="track"} 1
# HELP modhooks_hook_failures_total Handler errors and panics per hook (cumulative)
# TYPE modhooks_hook_failures_total counter
modhooks_hook_failures_total{hook="greet"} 0
modhooks_hook_failures_total{hook="track"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"modhooks_hook_dispatches_total", "modhooks_hook_failures_total"))
}

func TestCollector_ModuleMetrics(t *testing.T) {
	c := NewCollector(modhooks.NewHookRegistry(), fakeModules{modules: []lifecycle.ModuleStatus{
		{ID: "combat", State: modhooks.StateEnabled, Active: true},
		{ID: "currency", State: modhooks.StateEnabled, Active: true},
		{ID: "casino", State: modhooks.StateDisabled},
	}}, "game", nil)

	expected := `
# HELP game_modules Known modules per lifecycle state
# TYPE game_modules gauge
game_modules{state="disabled"} 1
game_modules{state="discovered"} 0
game_modules{state="enabled"} 2
game_modules{state="installed"} 0
# HELP game_module_active 1 when the module's plugin is attached to the hook registry
# TYPE game_module_active gauge
game_module_active{module="casino"} 0
game_module_active{module="combat"} 1
game_module_active{module="currency"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "game_modules", "game_module_active"))
}

func TestCollector_ListFailureSkipsModuleMetrics(t *testing.T) {
	c := NewCollector(modhooks.NewHookRegistry(), fakeModules{err: errors.New("store closed")}, "", nil)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
