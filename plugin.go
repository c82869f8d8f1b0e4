package modhooks

import (
	"context"
	"encoding/json"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golobby/cast"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Built-in hook names.
const (
	// HookCurrencyFormat is a filter over CurrencyPayload.
	HookCurrencyFormat = "currencyFormat"

	// HookAfterUserAction is an action over UserAction.
	HookAfterUserAction = "afterUserAction"
)

// Plugin is the contract every feature module implements.
type Plugin interface {
	// Identifier returns the module identifier the plugin was built for.
	Identifier() string

	// Initialize receives the module's manifest config merged with any
	// install-time overrides. Calling it twice with the same config must be safe.
	Initialize(config map[string]any) error

	// RegisterHooks attaches the plugin's handlers. It is called once when the
	// module is enabled and must be reversible with UnregisterHooks.
	RegisterHooks(hooks *HookRegistry) error

	// UnregisterHooks removes everything RegisterHooks attached.
	UnregisterHooks(hooks *HookRegistry)
}

// RouteProvider is implemented by plugins that expose HTTP routes. Routes are
// mounted when the module is enabled and unmounted when it is disabled.
type RouteProvider interface {
	Routes(r chi.Router)
}

// Describer is implemented by plugins that want a one-line summary shown in
// module listings.
type Describer interface {
	Describe() string
}

// CurrencyPayload flows through the currencyFormat filter.
type CurrencyPayload struct {
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
}

// UserAction is broadcast on afterUserAction.
type UserAction struct {
	Action string         `json:"action"`
	Module string         `json:"module"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// ClonePayload copies the action with its own Data map.
func (a UserAction) ClonePayload() any {
	a.Data = CloneConfig(a.Data)
	return a
}

// BasePlugin carries the shared plumbing feature modules embed: config,
// request-scoped alerts, owned hook registrations and the currency and
// action-tracking helpers.
type BasePlugin struct {
	id string

	mu     sync.Mutex
	config map[string]any
	hooks  *HookRegistry
	refs   []HandlerRef
	alerts alertLog
}

// NewBasePlugin creates the base for the module with the given identifier.
func NewBasePlugin(id string) *BasePlugin {
	return &BasePlugin{id: id}
}

// Identifier implements Plugin.
func (b *BasePlugin) Identifier() string {
	return b.id
}

// Initialize implements Plugin by keeping a private copy of config.
func (b *BasePlugin) Initialize(config map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = CloneConfig(config)
	if b.config == nil {
		b.config = map[string]any{}
	}
	return nil
}

// RegisterHooks implements Plugin. The base registers nothing but remembers
// the registry for the dispatch helpers.
func (b *BasePlugin) RegisterHooks(hooks *HookRegistry) error {
	b.Bind(hooks)
	return nil
}

// UnregisterHooks implements Plugin by removing every handler registered via
// RegisterFilter and RegisterAction. A second call is a no-op.
func (b *BasePlugin) UnregisterHooks(hooks *HookRegistry) {
	b.mu.Lock()
	refs := b.refs
	b.refs = nil
	b.mu.Unlock()
	for _, ref := range refs {
		hooks.Unregister(ref)
	}
}

// Bind sets the registry used by FormatCurrency and TrackAction.
func (b *BasePlugin) Bind(hooks *HookRegistry) {
	b.mu.Lock()
	b.hooks = hooks
	b.mu.Unlock()
}

// Hooks returns the bound registry, or nil.
func (b *BasePlugin) Hooks() *HookRegistry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hooks
}

// Registrations returns the handlers this plugin currently owns.
func (b *BasePlugin) Registrations() []HandlerRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HandlerRef, len(b.refs))
	copy(out, b.refs)
	return out
}

func (b *BasePlugin) track(hooks *HookRegistry, ref HandlerRef) {
	b.mu.Lock()
	if b.hooks == nil {
		b.hooks = hooks
	}
	b.refs = append(b.refs, ref)
	b.mu.Unlock()
}

// RegisterFilter registers a typed filter owned by the plugin.
func RegisterFilter[T any](hooks *HookRegistry, b *BasePlugin, name string, priority int, fn FilterFunc[T]) error {
	ref, err := AddFilter(hooks, name, priority, fn, WithOwner(b.id), WithHandlerName(b.id+"."+name))
	if err != nil {
		return err
	}
	b.track(hooks, ref)
	return nil
}

// RegisterAction registers a typed action owned by the plugin.
func RegisterAction[T any](hooks *HookRegistry, b *BasePlugin, name string, priority int, fn ActionFunc[T]) error {
	ref, err := AddAction(hooks, name, priority, fn, WithOwner(b.id), WithHandlerName(b.id+"."+name))
	if err != nil {
		return err
	}
	b.track(hooks, ref)
	return nil
}

// Success appends a success alert.
func (b *BasePlugin) Success(msg string) { b.addAlert(AlertSuccess, msg) }

// Error appends an error alert.
func (b *BasePlugin) Error(msg string) { b.addAlert(AlertError, msg) }

// Warning appends a warning alert.
func (b *BasePlugin) Warning(msg string) { b.addAlert(AlertWarning, msg) }

// Info appends an info alert.
func (b *BasePlugin) Info(msg string) { b.addAlert(AlertInfo, msg) }

func (b *BasePlugin) addAlert(t AlertType, msg string) {
	b.mu.Lock()
	b.alerts.add(t, msg)
	b.mu.Unlock()
}

// Alerts returns the alerts accumulated so far.
func (b *BasePlugin) Alerts() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alerts.list()
}

// TakeAlerts returns and clears the accumulated alerts.
func (b *BasePlugin) TakeAlerts() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alerts.take()
}

// FormatCurrency renders amount through the currencyFormat filter so another
// module can override the presentation.
func (b *BasePlugin) FormatCurrency(ctx context.Context, amount int64) (string, error) {
	payload := CurrencyPayload{Amount: amount, Formatted: DefaultCurrencyFormat(amount)}
	hooks := b.Hooks()
	if hooks == nil {
		return payload.Formatted, nil
	}
	out, err := ApplyFilter(ctx, hooks, HookCurrencyFormat, payload)
	if err != nil {
		return "", err
	}
	return out.Formatted, nil
}

// TrackAction broadcasts afterUserAction for analytics and achievement
// modules. data is merged with the action type and the module identifier.
func (b *BasePlugin) TrackAction(ctx context.Context, actionType string, data map[string]any) {
	hooks := b.Hooks()
	if hooks == nil {
		return
	}
	merged := make(map[string]any, len(data)+2)
	maps.Copy(merged, CloneConfig(data))
	merged["action"] = actionType
	merged["module"] = b.id
	DoAction(ctx, hooks, HookAfterUserAction, UserAction{
		Action: actionType,
		Module: b.id,
		Data:   merged,
		At:     time.Now().UTC(),
	})
}

// DefaultCurrencyFormat is the presentation used when no module overrides
// currencyFormat, e.g. "$1,234" or "-$5".
func DefaultCurrencyFormat(amount int64) string {
	return FormatMoney(message.NewPrinter(language.English), amount, "$", false)
}

// FormatMoney groups the digits of amount with printer and places symbol
// before them, or after them separated by a space. The sign always leads.
func FormatMoney(printer *message.Printer, amount int64, symbol string, symbolAfter bool) string {
	sign := ""
	magnitude := uint64(amount)
	if amount < 0 {
		sign = "-"
		magnitude = uint64(-(amount + 1)) + 1
	}
	digits := printer.Sprintf("%d", magnitude)
	if symbolAfter {
		return sign + digits + " " + symbol
	}
	return sign + symbol + digits
}

// Config returns a copy of the plugin configuration.
func (b *BasePlugin) Config() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CloneConfig(b.config)
}

func (b *BasePlugin) configValue(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.config[key]
	return v, ok && v != nil
}

// ConfigString returns a string config value or def.
func (b *BasePlugin) ConfigString(key, def string) string {
	v, ok := b.configValue(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// ConfigInt returns an integer config value or def. String values, as they
// arrive from environment overrides, are converted.
func (b *BasePlugin) ConfigInt(key string, def int) int {
	v, ok := b.configValue(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if c, err := cast.FromType(n, reflect.TypeFor[int]()); err == nil {
			if i, ok := c.(int); ok {
				return i
			}
		}
	}
	return def
}

// ConfigFloat returns a float config value or def.
func (b *BasePlugin) ConfigFloat(key string, def float64) float64 {
	v, ok := b.configValue(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if c, err := cast.FromType(n, reflect.TypeFor[float64]()); err == nil {
			if f, ok := c.(float64); ok {
				return f
			}
		}
	}
	return def
}

// ConfigBool returns a boolean config value or def.
func (b *BasePlugin) ConfigBool(key string, def bool) bool {
	v, ok := b.configValue(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if c, err := cast.FromType(t, reflect.TypeFor[bool]()); err == nil {
			if v, ok := c.(bool); ok {
				return v
			}
		}
	}
	return def
}
