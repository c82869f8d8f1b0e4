package modhooks

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/GoCodeAlone/modhooks"

// HookKind is the dispatch style a handler was registered for.
type HookKind string

const (
	HookFilter HookKind = "filter"
	HookAction HookKind = "action"
)

// Handler is an untyped hook handler. Filter handlers return the transformed
// payload; the return value of action handlers is ignored.
type Handler func(ctx context.Context, payload any) (any, error)

// HandlerRef identifies one registration so it can be removed again.
type HandlerRef struct {
	Hook string
	ID   uint64
}

// HandlerInfo describes a registered handler.
type HandlerInfo struct {
	Ref      HandlerRef `json:"ref"`
	Priority int        `json:"priority"`
	Owner    string     `json:"owner,omitempty"`
	Kind     HookKind   `json:"kind,omitempty"`
	Name     string     `json:"name,omitempty"`
}

// HookStats are cumulative dispatch counters for one hook name.
type HookStats struct {
	Name       string `json:"name"`
	Handlers   int    `json:"handlers"`
	Dispatches uint64 `json:"dispatches"`
	Failures   uint64 `json:"failures"`
}

type hookEntry struct {
	id       uint64
	priority int
	owner    string
	kind     HookKind
	name     string
	fn       Handler
}

// hookChain holds the ordered handlers of a single hook name. The entries
// slice is immutable once published; writers copy, modify and swap it.
type hookChain struct {
	mu          sync.Mutex
	entries     atomic.Pointer[[]*hookEntry]
	payloadType reflect.Type
	kind        HookKind

	dispatches atomic.Uint64
	failures   atomic.Uint64
}

func (c *hookChain) load() []*hookEntry {
	if p := c.entries.Load(); p != nil {
		return *p
	}
	return nil
}

// HookRegistry stores, per hook name, handlers ordered by ascending priority
// (ties keep registration order) and dispatches filters and actions over them.
//
// Dispatch never takes a lock: registration publishes a new ordered slice via
// an atomic pointer swap, so enabling or disabling a module never blocks
// in-flight requests.
type HookRegistry struct {
	chains sync.Map // hook name -> *hookChain
	seq    atomic.Uint64
	logger Logger
	tracer trace.Tracer
	strict bool
}

// HookOption configures a HookRegistry.
type HookOption func(*HookRegistry)

// WithHookLogger sets the logger used for isolated action failures.
func WithHookLogger(logger Logger) HookOption {
	return func(r *HookRegistry) {
		r.logger = loggerOrNop(logger)
	}
}

// WithTracerProvider traces each dispatch with the given provider.
func WithTracerProvider(tp trace.TracerProvider) HookOption {
	return func(r *HookRegistry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithStrictSchemas rejects registrations on hooks without a declared or
// pinned payload type.
func WithStrictSchemas() HookOption {
	return func(r *HookRegistry) {
		r.strict = true
	}
}

// NewHookRegistry creates an empty, isolated hook registry.
func NewHookRegistry(opts ...HookOption) *HookRegistry {
	r := &HookRegistry{
		logger: NopLogger{},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type registerConfig struct {
	owner       string
	kind        HookKind
	name        string
	payloadType reflect.Type
}

// RegisterOption annotates a registration.
type RegisterOption func(*registerConfig)

// WithOwner marks the handler as belonging to a module so it can be removed
// with UnregisterOwner.
func WithOwner(owner string) RegisterOption {
	return func(c *registerConfig) { c.owner = owner }
}

// WithKind records the dispatch style the handler expects.
func WithKind(kind HookKind) RegisterOption {
	return func(c *registerConfig) { c.kind = kind }
}

// WithHandlerName gives the handler a name for logs and listings.
func WithHandlerName(name string) RegisterOption {
	return func(c *registerConfig) { c.name = name }
}

func withPayloadType(t reflect.Type) RegisterOption {
	return func(c *registerConfig) { c.payloadType = t }
}

func (r *HookRegistry) chain(name string) *hookChain {
	if c, ok := r.chains.Load(name); ok {
		return c.(*hookChain)
	}
	c, _ := r.chains.LoadOrStore(name, &hookChain{})
	return c.(*hookChain)
}

func (r *HookRegistry) lookup(name string) (*hookChain, bool) {
	c, ok := r.chains.Load(name)
	if !ok {
		return nil, false
	}
	return c.(*hookChain), true
}

// Declare pins the payload type and kind of a hook name. sample is any value
// of the payload type. Declaring the same type twice is a no-op.
func (r *HookRegistry) Declare(name string, kind HookKind, sample any) error {
	if name == "" {
		return ErrEmptyHookName
	}
	t := reflect.TypeOf(sample)
	c := r.chain(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payloadType != nil && t != nil && c.payloadType != t {
		return fmt.Errorf("%w: hook %q declared with %s, got %s", ErrPayloadMismatch, name, c.payloadType, t)
	}
	if t != nil {
		c.payloadType = t
	}
	c.kind = kind
	return nil
}

// Register appends a handler to a hook, keeping the list ordered by priority.
func (r *HookRegistry) Register(name string, priority int, handler Handler, opts ...RegisterOption) (HandlerRef, error) {
	if name == "" {
		return HandlerRef{}, ErrEmptyHookName
	}
	if handler == nil {
		return HandlerRef{}, ErrNilHandler
	}
	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c := r.chain(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case cfg.payloadType != nil && c.payloadType == nil:
		c.payloadType = cfg.payloadType
	case cfg.payloadType != nil && c.payloadType != cfg.payloadType:
		return HandlerRef{}, fmt.Errorf("%w: hook %q carries %s, handler expects %s",
			ErrPayloadMismatch, name, c.payloadType, cfg.payloadType)
	case cfg.payloadType == nil && c.payloadType == nil && r.strict:
		return HandlerRef{}, fmt.Errorf("%w: %s", ErrUndeclaredHook, name)
	}
	if c.kind != "" && cfg.kind != "" && c.kind != cfg.kind {
		r.logger.Warn("Hook used with mixed dispatch kinds", "hook", name, "declared", c.kind, "handler", cfg.kind)
	}
	if c.kind == "" {
		c.kind = cfg.kind
	}

	entry := &hookEntry{
		id:       r.seq.Add(1),
		priority: priority,
		owner:    cfg.owner,
		kind:     cfg.kind,
		name:     cfg.name,
		fn:       handler,
	}

	old := c.load()
	// Equal priorities keep insertion order: insert after every entry <= priority.
	idx := sort.Search(len(old), func(i int) bool { return old[i].priority > priority })
	next := make([]*hookEntry, 0, len(old)+1)
	next = append(next, old[:idx]...)
	next = append(next, entry)
	next = append(next, old[idx:]...)
	c.entries.Store(&next)

	r.logger.Debug("Registered hook handler", "hook", name, "priority", priority, "owner", cfg.owner, "id", entry.id)
	return HandlerRef{Hook: name, ID: entry.id}, nil
}

// Unregister removes a single handler. It reports whether the handler was
// still registered.
func (r *HookRegistry) Unregister(ref HandlerRef) bool {
	c, ok := r.lookup(ref.Hook)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.load()
	idx := slices.IndexFunc(old, func(e *hookEntry) bool { return e.id == ref.ID })
	if idx < 0 {
		return false
	}
	next := slices.Concat(old[:idx], old[idx+1:])
	c.entries.Store(&next)
	return true
}

// UnregisterOwner removes every handler registered with WithOwner(owner) and
// returns how many were removed. Calling it again returns 0.
func (r *HookRegistry) UnregisterOwner(owner string) int {
	if owner == "" {
		return 0
	}
	removed := 0
	r.chains.Range(func(_, value any) bool {
		c := value.(*hookChain)
		c.mu.Lock()
		old := c.load()
		next := slices.DeleteFunc(slices.Clone(old), func(e *hookEntry) bool { return e.owner == owner })
		if n := len(old) - len(next); n > 0 {
			removed += n
			c.entries.Store(&next)
		}
		c.mu.Unlock()
		return true
	})
	return removed
}

// Filter threads payload through every handler of the hook in priority order
// and returns the final value. With no handlers the payload is returned
// unchanged. The first handler error or panic aborts the chain and is
// returned as a *HandlerError.
func (r *HookRegistry) Filter(ctx context.Context, name string, payload any) (any, error) {
	c, ok := r.lookup(name)
	if !ok {
		return payload, nil
	}
	entries := c.load()
	if len(entries) == 0 {
		return payload, nil
	}
	c.dispatches.Add(1)

	ctx, span := r.tracer.Start(ctx, "hook.filter", trace.WithAttributes(
		attribute.String("hook.name", name),
		attribute.Int("hook.handlers", len(entries)),
	))
	defer span.End()

	result := payload
	for _, e := range entries {
		out, err := r.invoke(ctx, name, e, result)
		if err != nil {
			c.failures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		result = out
	}
	return result, nil
}

// Action invokes every handler of the hook with the original payload.
// Handler failures are logged and counted; they never stop the remaining
// handlers and never reach the caller. Map payloads and payloads
// implementing PayloadCloner are copied per handler so handlers cannot
// observe each other's mutations.
func (r *HookRegistry) Action(ctx context.Context, name string, payload any) {
	c, ok := r.lookup(name)
	if !ok {
		return
	}
	entries := c.load()
	if len(entries) == 0 {
		return
	}
	c.dispatches.Add(1)

	ctx, span := r.tracer.Start(ctx, "hook.action", trace.WithAttributes(
		attribute.String("hook.name", name),
		attribute.Int("hook.handlers", len(entries)),
	))
	defer span.End()

	failed := 0
	for _, e := range entries {
		arg := clonePayload(payload)
		if _, err := r.invoke(ctx, name, e, arg); err != nil {
			failed++
			c.failures.Add(1)
			span.RecordError(err)
			r.logger.Error("Hook action handler failed",
				"hook", name, "handler", e.id, "owner", e.owner, "name", e.name, "error", err)
		}
	}
	if failed > 0 {
		span.SetAttributes(attribute.Int("hook.failures", failed))
	}
}

// PayloadCloner is implemented by action payloads that carry reference
// types. Action hands each handler its own ClonePayload result.
type PayloadCloner interface {
	ClonePayload() any
}

func clonePayload(payload any) any {
	switch t := payload.(type) {
	case PayloadCloner:
		return t.ClonePayload()
	case map[string]any:
		return CloneConfig(t)
	}
	return payload
}

func (r *HookRegistry) invoke(ctx context.Context, hook string, e *hookEntry, payload any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &HandlerError{
				Hook:    hook,
				Owner:   e.owner,
				Handler: e.id,
				Err:     fmt.Errorf("%w: %v", ErrHandlerPanic, rec),
			}
		}
	}()
	out, err = e.fn(ctx, payload)
	if err != nil {
		return nil, &HandlerError{Hook: hook, Owner: e.owner, Handler: e.id, Err: err}
	}
	return out, nil
}

// Has reports whether any handler is registered for the hook.
func (r *HookRegistry) Has(name string) bool {
	c, ok := r.lookup(name)
	return ok && len(c.load()) > 0
}

// Handlers lists the handlers of a hook in dispatch order.
func (r *HookRegistry) Handlers(name string) []HandlerInfo {
	c, ok := r.lookup(name)
	if !ok {
		return nil
	}
	entries := c.load()
	out := make([]HandlerInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, HandlerInfo{
			Ref:      HandlerRef{Hook: name, ID: e.id},
			Priority: e.priority,
			Owner:    e.owner,
			Kind:     e.kind,
			Name:     e.name,
		})
	}
	return out
}

// Hooks returns the sorted names of hooks with at least one handler.
func (r *HookRegistry) Hooks() []string {
	var names []string
	r.chains.Range(func(key, value any) bool {
		if len(value.(*hookChain).load()) > 0 {
			names = append(names, key.(string))
		}
		return true
	})
	sort.Strings(names)
	return names
}

// Stats returns dispatch counters for every known hook name, sorted by name.
func (r *HookRegistry) Stats() []HookStats {
	var stats []HookStats
	r.chains.Range(func(key, value any) bool {
		c := value.(*hookChain)
		stats = append(stats, HookStats{
			Name:       key.(string),
			Handlers:   len(c.load()),
			Dispatches: c.dispatches.Load(),
			Failures:   c.failures.Load(),
		})
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
