// Package admin exposes module management over HTTP: listing, install,
// enable, disable, uninstall, rescans, hook inspection and metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/health"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rescanner rediscovers module manifests.
type Rescanner interface {
	Rescan(ctx context.Context) ([]modhooks.ModuleDescriptor, []error)
}

// API serves the admin endpoints.
type API struct {
	service  *lifecycle.Service
	hooks    *modhooks.HookRegistry
	scanner  Rescanner
	logger   modhooks.Logger
	gatherer prometheus.Gatherer
	health   *health.Aggregator
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(logger modhooks.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics serves collectors on GET /metrics from a dedicated registry.
func WithMetrics(collectors ...prometheus.Collector) Option {
	return func(a *API) {
		reg := prometheus.NewRegistry()
		for _, c := range collectors {
			reg.MustRegister(c)
		}
		a.gatherer = reg
	}
}

// WithHealth serves the aggregated module health on GET /health.
func WithHealth(agg *health.Aggregator) Option {
	return func(a *API) {
		a.health = agg
	}
}

// New creates the admin API.
func New(service *lifecycle.Service, hooks *modhooks.HookRegistry, scanner Rescanner, opts ...Option) *API {
	a := &API{
		service: service,
		hooks:   hooks,
		scanner: scanner,
		logger:  modhooks.NopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes implements modhooks.RouteProvider so the API can be mounted under
// any prefix.
func (a *API) Routes(r chi.Router) {
	r.Use(middleware.NoCache)
	r.Route("/modules", func(r chi.Router) {
		r.Get("/", a.handleList)
		r.Post("/rescan", a.handleRescan)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGet)
			r.Delete("/", a.handleUninstall)
			r.Post("/install", a.handleInstall)
			r.Post("/enable", a.handleEnable)
			r.Post("/disable", a.handleDisable)
		})
	})
	r.Get("/hooks", a.handleHooks)
	if a.health != nil {
		r.Get("/health", a.handleHealth)
	}
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the API as a standalone handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	modules, err := a.service.ListModules(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modules)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.ModuleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// InstallRequest is the optional body of POST /modules/{id}/install.
type InstallRequest struct {
	Config map[string]any `json:"config,omitempty"`
}

func (a *API) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	a.transition(w, r, func(ctx context.Context, id string) error {
		return a.service.InstallWithConfig(ctx, id, req.Config)
	})
}

func (a *API) handleEnable(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.service.Enable)
}

func (a *API) handleDisable(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.service.Disable)
}

func (a *API) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.service.Uninstall(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transition runs op on the module named in the URL and responds with the
// module's new status.
func (a *API) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := op(ctx, id); err != nil {
		a.writeError(w, err)
		return
	}
	status, err := a.service.ModuleStatus(ctx, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RescanResponse is returned by POST /modules/rescan.
type RescanResponse struct {
	Modules []string `json:"modules"`
	Errors  []string `json:"errors,omitempty"`
}

func (a *API) handleRescan(w http.ResponseWriter, r *http.Request) {
	descs, errs := a.scanner.Rescan(r.Context())
	resp := RescanResponse{Modules: make([]string, 0, len(descs))}
	for _, d := range descs {
		resp.Modules = append(resp.Modules, d.ID)
	}
	for _, err := range errs {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// HookInfo is one hook of GET /hooks.
type HookInfo struct {
	Name       string                 `json:"name"`
	Dispatches uint64                 `json:"dispatches"`
	Failures   uint64                 `json:"failures"`
	Handlers   []modhooks.HandlerInfo `json:"handlers"`
}

func (a *API) handleHooks(w http.ResponseWriter, _ *http.Request) {
	stats := make(map[string]modhooks.HookStats)
	for _, s := range a.hooks.Stats() {
		stats[s.Name] = s
	}
	names := a.hooks.Hooks()
	out := make([]HookInfo, 0, len(names))
	for _, name := range names {
		out = append(out, HookInfo{
			Name:       name,
			Dispatches: stats[name].Dispatches,
			Failures:   stats[name].Failures,
			Handlers:   a.hooks.Handlers(name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth answers 503 while a required module is unhealthy.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := a.health.Collect(r.Context())
	code := http.StatusOK
	if result.Readiness != health.StatusHealthy && result.Readiness != health.StatusDegraded {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result)
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusCode maps lifecycle errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, modhooks.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, modhooks.ErrInvalidTransition),
		errors.Is(err, modhooks.ErrUnmetDependency),
		errors.Is(err, modhooks.ErrHasDependents),
		errors.Is(err, modhooks.ErrCircularDependency):
		return http.StatusConflict
	case errors.Is(err, modhooks.ErrInvalidManifest),
		errors.Is(err, modhooks.ErrDuplicateIdentifier):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		a.logger.Error("Admin request failed", "error", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
