// Package currency formats in-game money for every other module through the
// currencyFormat filter.
package currency

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/health"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ID is the module identifier.
const ID = "currency"

// Plugin renders amounts with a locale-aware digit grouping and a configured
// symbol, e.g. "$1,234" or "1.234 €".
type Plugin struct {
	*modhooks.BasePlugin

	printer  *message.Printer
	symbol   string
	suffix   bool
	priority int
}

// New returns an unconfigured currency plugin.
func New() modhooks.Plugin {
	return &Plugin{BasePlugin: modhooks.NewBasePlugin(ID)}
}

// Initialize reads locale, symbol, symbol_after and priority.
func (p *Plugin) Initialize(config map[string]any) error {
	if err := p.BasePlugin.Initialize(config); err != nil {
		return err
	}
	tag, err := language.Parse(p.ConfigString("locale", "en"))
	if err != nil {
		return fmt.Errorf("currency: invalid locale: %w", err)
	}
	p.printer = message.NewPrinter(tag)
	p.symbol = p.ConfigString("symbol", "$")
	p.suffix = p.ConfigBool("symbol_after", false)
	p.priority = p.ConfigInt("priority", 10)
	return nil
}

// RegisterHooks implements modhooks.Plugin.
func (p *Plugin) RegisterHooks(hooks *modhooks.HookRegistry) error {
	p.Bind(hooks)
	return modhooks.RegisterFilter(hooks, p.BasePlugin, modhooks.HookCurrencyFormat, p.priority, p.filter)
}

// Describe implements modhooks.Describer.
func (p *Plugin) Describe() string {
	return "Formats currency amounts"
}

func (p *Plugin) filter(_ context.Context, in modhooks.CurrencyPayload) (modhooks.CurrencyPayload, error) {
	in.Formatted = p.Format(in.Amount)
	return in, nil
}

// Format renders amount without consulting the hook registry.
func (p *Plugin) Format(amount int64) string {
	return modhooks.FormatMoney(p.printer, amount, p.symbol, p.suffix)
}

// HealthCheck reports degraded when the currencyFormat filter is no longer
// attached, in which case callers fall back to the default format.
func (p *Plugin) HealthCheck(context.Context) ([]health.Report, error) {
	report := health.Report{Component: "formatter", Status: health.StatusHealthy}
	hooks := p.Hooks()
	attached := false
	if hooks != nil {
		for _, h := range hooks.Handlers(modhooks.HookCurrencyFormat) {
			attached = attached || h.Owner == ID
		}
	}
	if !attached {
		report.Status = health.StatusDegraded
		report.Message = "currencyFormat filter is not registered"
	}
	return []health.Report{report}, nil
}
