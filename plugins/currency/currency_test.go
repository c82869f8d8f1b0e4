package currency

import (
	"context"
	"math"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlugin(t *testing.T, config map[string]any) (*Plugin, *modhooks.HookRegistry) {
	t.Helper()
	hooks := modhooks.NewHookRegistry()
	p := New().(*Plugin)
	require.NoError(t, p.Initialize(config))
	require.NoError(t, p.RegisterHooks(hooks))
	return p, hooks
}

func TestCurrency_FormatsThroughFilter(t *testing.T) {
	p, hooks := newPlugin(t, nil)

	out, err := modhooks.ApplyFilter(context.Background(), hooks, modhooks.HookCurrencyFormat,
		modhooks.CurrencyPayload{Amount: 1234567})
	require.NoError(t, err)
	assert.Equal(t, "$1,234,567", out.Formatted)
	assert.Equal(t, "-$5", p.Format(-5))
}

func TestCurrency_NegativeAmounts(t *testing.T) {
	p, _ := newPlugin(t, nil)
	assert.Equal(t, "-$9,223,372,036,854,775,808", p.Format(math.MinInt64))
	assert.Equal(t, "$9,223,372,036,854,775,807", p.Format(math.MaxInt64))
	assert.Equal(t, modhooks.DefaultCurrencyFormat(-1500), p.Format(-1500))
	assert.Equal(t, "-$1,500", modhooks.DefaultCurrencyFormat(-1500))
}

func TestCurrency_LocaleAndSuffix(t *testing.T) {
	p, _ := newPlugin(t, map[string]any{"locale": "de", "symbol": "€", "symbol_after": "true"})
	assert.Equal(t, "1.234 €", p.Format(1234))
}

func TestCurrency_InvalidLocale(t *testing.T) {
	p := New().(*Plugin)
	assert.Error(t, p.Initialize(map[string]any{"locale": "not a locale!"}))
}

func TestCurrency_UnregisterRemovesFilter(t *testing.T) {
	p, hooks := newPlugin(t, nil)
	require.True(t, hooks.Has(modhooks.HookCurrencyFormat))

	p.UnregisterHooks(hooks)
	assert.False(t, hooks.Has(modhooks.HookCurrencyFormat))

	amount, err := p.FormatCurrency(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "$42", amount, "default presentation once no filter is left")
}

func TestCurrency_HealthCheck(t *testing.T) {
	p, hooks := newPlugin(t, nil)
	reports, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, health.StatusHealthy, reports[0].Status)

	p.UnregisterHooks(hooks)
	reports, err = p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, reports[0].Status)
}
