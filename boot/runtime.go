// Package boot wires configuration, persisted state, discovery, the hook
// registry and the lifecycle service into a running Runtime, and restores
// every persisted-enabled module at startup.
package boot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/config"
	"github.com/GoCodeAlone/modhooks/health"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/GoCodeAlone/modhooks/metrics"
	"github.com/GoCodeAlone/modhooks/registry"
	"github.com/GoCodeAlone/modhooks/routing"
	"github.com/GoCodeAlone/modhooks/store"
	"github.com/GoCodeAlone/modhooks/store/sqlite"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned by operations on a closed Runtime.
var ErrClosed = errors.New("runtime is closed")

type observerRegistration struct {
	observer   modhooks.Observer
	eventTypes []string
}

type options struct {
	logger    modhooks.Logger
	store     store.Store
	tracer    trace.TracerProvider
	observers []observerRegistration
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger modhooks.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStore uses st instead of opening the configured store. The runtime
// closes it on Close.
func WithStore(st store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithTracerProvider traces hook dispatch with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithObserver subscribes observer to lifecycle and discovery events.
func WithObserver(observer modhooks.Observer, eventTypes ...string) Option {
	return func(o *options) {
		o.observers = append(o.observers, observerRegistration{observer: observer, eventTypes: eventTypes})
	}
}

// Runtime owns every long-lived component of a modhooks process.
type Runtime struct {
	cfg      config.Config
	logger   modhooks.Logger
	catalog  *modhooks.Catalog
	store    store.Store
	subject  *modhooks.EventSubject
	hooks    *modhooks.HookRegistry
	registry *registry.Registry
	service  *lifecycle.Service
	routes   *routing.Table
	metrics  *metrics.Collector
	health   *health.Aggregator

	mu       sync.Mutex
	closed   bool
	cron     *cron.Cron
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	wg       sync.WaitGroup
	rescanMu sync.Mutex
}

// New builds a Runtime. Nothing is discovered or activated until Boot.
func New(cfg config.Config, catalog *modhooks.Catalog, opts ...Option) (*Runtime, error) {
	o := options{logger: modhooks.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	if catalog == nil {
		catalog = modhooks.NewCatalog()
	}

	st := o.store
	if st == nil {
		var err error
		st, err = openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	subject := modhooks.NewEventSubject(o.logger)
	for _, reg := range o.observers {
		if err := subject.RegisterObserver(reg.observer, reg.eventTypes...); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("register observer %s: %w", reg.observer.ObserverID(), err)
		}
	}

	hookOpts := []modhooks.HookOption{modhooks.WithHookLogger(o.logger)}
	if o.tracer != nil {
		hookOpts = append(hookOpts, modhooks.WithTracerProvider(o.tracer))
	}
	if cfg.StrictHooks {
		hookOpts = append(hookOpts, modhooks.WithStrictSchemas())
	}
	hooks := modhooks.NewHookRegistry(hookOpts...)
	if err := declareBuiltinHooks(hooks); err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := registry.New(st, cfg.ModuleRoots, registry.WithLogger(o.logger), registry.WithSubject(subject))
	routes := routing.NewTable(routing.WithLogger(o.logger))
	service := lifecycle.New(reg, hooks, catalog,
		lifecycle.WithLogger(o.logger),
		lifecycle.WithSubject(subject),
		lifecycle.WithRoutes(routes),
	)

	return &Runtime{
		cfg:      cfg,
		logger:   o.logger,
		catalog:  catalog,
		store:    st,
		subject:  subject,
		hooks:    hooks,
		registry: reg,
		service:  service,
		routes:   routes,
		metrics:  metrics.NewCollector(hooks, service, metrics.DefaultNamespace, o.logger),
		health: health.NewAggregator(service,
			health.WithSubject(subject),
			health.WithLogger(o.logger),
			health.WithOptional(cfg.Health.Optional...),
			health.WithTimeout(cfg.Health.Timeout.Std()),
		),
	}, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite, "":
		st, err := sqlite.Open(context.Background(), cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open module store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

func declareBuiltinHooks(hooks *modhooks.HookRegistry) error {
	return errors.Join(
		modhooks.DeclareHook[modhooks.CurrencyPayload](hooks, modhooks.HookCurrencyFormat, modhooks.HookFilter),
		modhooks.DeclareHook[modhooks.UserAction](hooks, modhooks.HookAfterUserAction, modhooks.HookAction),
	)
}

// Report summarizes a Boot.
type Report struct {
	Discovered      []string
	DiscoveryErrors []error
	AutoInstalled   []string
	Activated       []string

	// Failed maps each module that could not be activated to the reason,
	// including modules skipped because a dependency failed.
	Failed map[string]error
}

// Boot discovers modules, optionally auto-installs new ones and re-attaches
// every persisted-enabled module in dependency order. A module that fails is
// logged and skipped together with the modules that depend on it; the rest
// still start. Boot also starts the configured rescan triggers.
func (r *Runtime) Boot(ctx context.Context) (Report, error) {
	if r.isClosed() {
		return Report{}, ErrClosed
	}
	report := Report{Failed: make(map[string]error)}

	descs, errs := r.registry.Rescan(ctx)
	for _, err := range errs {
		r.logger.Warn("Skipping module", "error", err)
	}
	report.DiscoveryErrors = errs
	byID := make(map[string]modhooks.ModuleDescriptor, len(descs))
	for _, desc := range descs {
		byID[desc.ID] = desc
		report.Discovered = append(report.Discovered, desc.ID)
	}

	fresh := make(map[string]bool)
	if r.cfg.AutoInstall {
		for _, desc := range descs {
			if !desc.Enabled {
				continue
			}
			state, err := r.registry.State(ctx, desc.ID)
			if err != nil || state != modhooks.StateDiscovered {
				continue
			}
			if err := r.service.InstallWithConfig(ctx, desc.ID, r.cfg.Modules[desc.ID]); err != nil {
				report.Failed[desc.ID] = err
				continue
			}
			fresh[desc.ID] = true
			report.AutoInstalled = append(report.AutoInstalled, desc.ID)
		}
	}

	records, err := r.registry.Records(ctx)
	if err != nil {
		return report, fmt.Errorf("load module records: %w", err)
	}
	var targets []string
	for _, rec := range records {
		if !rec.Enabled && !fresh[rec.ID] {
			continue
		}
		if _, ok := byID[rec.ID]; !ok {
			err := fmt.Errorf("%w: %s is enabled but its manifest was not discovered", modhooks.ErrNotFound, rec.ID)
			r.logger.Error("Cannot restore module", "module", rec.ID, "error", err)
			report.Failed[rec.ID] = err
			continue
		}
		targets = append(targets, rec.ID)
	}

	order, cyclic := resolveOrder(byID, targets)
	for id, err := range cyclic {
		r.logger.Error("Cannot restore module", "module", id, "error", err)
		report.Failed[id] = err
	}

	for _, id := range order {
		if err := r.blockedBy(byID[id], report.Failed); err != nil {
			r.logger.Warn("Skipping module", "module", id, "error", err)
			report.Failed[id] = err
			continue
		}
		if fresh[id] {
			err = r.service.Enable(ctx, id)
		} else {
			err = r.service.Activate(ctx, id)
		}
		if err != nil {
			report.Failed[id] = err
			continue
		}
		report.Activated = append(report.Activated, id)
	}

	r.logger.Info("Modules booted",
		"discovered", len(report.Discovered),
		"activated", len(report.Activated),
		"failed", len(report.Failed))

	if err := r.startTriggers(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runtime) blockedBy(desc modhooks.ModuleDescriptor, failed map[string]error) error {
	for _, dep := range desc.Dependencies {
		if _, ok := failed[dep]; ok {
			return fmt.Errorf("%w: %s requires %s which failed to start", modhooks.ErrUnmetDependency, desc.ID, dep)
		}
	}
	return nil
}

// Rescan rediscovers the module roots. Installed and enabled modules are not
// touched; new modules appear as discovered.
func (r *Runtime) Rescan(ctx context.Context) ([]modhooks.ModuleDescriptor, []error) {
	r.rescanMu.Lock()
	defer r.rescanMu.Unlock()
	descs, errs := r.registry.Rescan(ctx)
	for _, err := range errs {
		r.logger.Warn("Skipping module", "error", err)
	}
	r.logger.Debug("Module roots rescanned", "modules", len(descs), "errors", len(errs))
	return descs, errs
}

type binder interface {
	Bind(hooks *modhooks.HookRegistry)
}

// NewRequestPlugin builds a fresh, request-scoped instance of an enabled
// module: its own alerts, its own copy of the merged config, bound to the
// shared hook registry. It never registers handlers.
func (r *Runtime) NewRequestPlugin(ctx context.Context, id string) (modhooks.Plugin, error) {
	if _, active := r.service.Active(id); !active {
		return nil, fmt.Errorf("%w: %s is not enabled", modhooks.ErrNotFound, id)
	}
	desc, ok := r.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
	}
	rec, err := r.registry.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	plugin, err := r.catalog.New(id)
	if err != nil {
		return nil, err
	}
	if err := plugin.Initialize(modhooks.MergeConfig(desc.Config, rec.Overrides)); err != nil {
		return nil, fmt.Errorf("initialize module %s: %w", id, err)
	}
	if b, ok := plugin.(binder); ok {
		b.Bind(r.hooks)
	}
	return plugin, nil
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() config.Config { return r.cfg }

// Logger returns the logger shared by every component.
func (r *Runtime) Logger() modhooks.Logger { return r.logger }

// Hooks returns the shared hook registry.
func (r *Runtime) Hooks() *modhooks.HookRegistry { return r.hooks }

// Lifecycle returns the lifecycle service.
func (r *Runtime) Lifecycle() *lifecycle.Service { return r.service }

// Registry returns the module registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Routes returns the route table serving enabled modules.
func (r *Runtime) Routes() *routing.Table { return r.routes }

// Metrics returns the Prometheus collector over hooks and modules.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// Health returns the module health aggregator.
func (r *Runtime) Health() *health.Aggregator { return r.health }

// Subject returns the event subject lifecycle events are published on.
func (r *Runtime) Subject() modhooks.Subject { return r.subject }

// Catalog returns the plugin catalog.
func (r *Runtime) Catalog() *modhooks.Catalog { return r.catalog }

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the rescan triggers, detaches every active module without
// changing persisted state and closes the store. Calling it again is a
// no-op.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.stopTriggers()
	r.service.Shutdown()
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close module store: %w", err)
	}
	return nil
}
