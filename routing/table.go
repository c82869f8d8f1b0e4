// Package routing serves the HTTP routes of enabled modules. Routes appear
// when a module is enabled and disappear when it is disabled, without
// restarting the server.
package routing

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/modhooks"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware is an alias for the chi middleware handler function.
type Middleware func(http.Handler) http.Handler

// Route describes one mounted route.
type Route struct {
	Module  string `json:"module"`
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
}

// Table is an http.Handler over the routes of every mounted module. Each
// change rebuilds the chi router off to the side and swaps it in atomically,
// so in-flight requests keep the router they started with.
type Table struct {
	mu          sync.Mutex
	providers   map[string]modhooks.RouteProvider
	order       []string
	middlewares []Middleware
	logger      modhooks.Logger

	current atomic.Pointer[chi.Mux]
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the table logger.
func WithLogger(logger modhooks.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMiddleware wraps every module route.
func WithMiddleware(mw ...Middleware) Option {
	return func(t *Table) {
		t.middlewares = append(t.middlewares, mw...)
	}
}

// NewTable creates an empty table. Requests for unknown routes get 404.
func NewTable(opts ...Option) *Table {
	t := &Table{
		providers: make(map[string]modhooks.RouteProvider),
		logger:    modhooks.NopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	root, _ := t.build(t.providers, t.order)
	t.current.Store(root)
	return t
}

// Mount adds the routes of module id, replacing any earlier mount of the
// same module. A provider that panics while declaring routes is rejected
// and the table is left unchanged.
func (t *Table) Mount(id string, provider modhooks.RouteProvider) error {
	if provider == nil {
		return fmt.Errorf("mount routes of %s: nil provider", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	providers := make(map[string]modhooks.RouteProvider, len(t.providers)+1)
	for k, v := range t.providers {
		providers[k] = v
	}
	providers[id] = provider
	order := t.order
	if !slices.Contains(order, id) {
		order = append(slices.Clone(order), id)
	}

	root, err := t.build(providers, order)
	if err != nil {
		return err
	}
	t.providers, t.order = providers, order
	t.current.Store(root)
	t.logger.Debug("Mounted module routes", "module", id)
	return nil
}

// Unmount removes the routes of module id and reports whether it was
// mounted.
func (t *Table) Unmount(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.providers[id]; !ok {
		return false
	}
	providers := make(map[string]modhooks.RouteProvider, len(t.providers))
	for k, v := range t.providers {
		if k != id {
			providers[k] = v
		}
	}
	order := slices.DeleteFunc(slices.Clone(t.order), func(v string) bool { return v == id })

	// Every remaining provider was built successfully before.
	root, err := t.build(providers, order)
	if err != nil {
		t.logger.Error("Failed to rebuild routes", "module", id, "error", err)
		return false
	}
	t.providers, t.order = providers, order
	t.current.Store(root)
	t.logger.Debug("Unmounted module routes", "module", id)
	return true
}

// Mounted returns the identifiers of modules with routes, in mount order.
func (t *Table) Mounted() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.order)
}

// Routes lists every mounted route.
func (t *Table) Routes() []Route {
	t.mu.Lock()
	ids := slices.Clone(t.order)
	providers := make(map[string]modhooks.RouteProvider, len(t.providers))
	for k, v := range t.providers {
		providers[k] = v
	}
	t.mu.Unlock()

	var out []Route
	for _, id := range ids {
		r := chi.NewRouter()
		if err := declare(r, id, providers[id]); err != nil {
			continue
		}
		_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			out = append(out, Route{Module: id, Method: method, Pattern: strings.TrimSuffix(route, "/*")})
			return nil
		})
	}
	return out
}

// ServeHTTP implements http.Handler.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.current.Load().ServeHTTP(w, r)
}

func (t *Table) build(providers map[string]modhooks.RouteProvider, order []string) (*chi.Mux, error) {
	root := chi.NewRouter()
	root.Use(middleware.Recoverer)
	for _, mw := range t.middlewares {
		root.Use(mw)
	}
	for _, id := range order {
		var err error
		root.Group(func(r chi.Router) {
			r.Use(moduleHeader(id))
			err = declare(r, id, providers[id])
		})
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

func declare(r chi.Router, id string, provider modhooks.RouteProvider) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module %s panicked while declaring routes: %v", id, rec)
		}
	}()
	provider.Routes(r)
	return nil
}

// ModuleHeader names the module that served a response.
const ModuleHeader = "X-Modhooks-Module"

func moduleHeader(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(ModuleHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}
