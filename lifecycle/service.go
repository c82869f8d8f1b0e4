// Package lifecycle moves modules through install, enable, disable and
// uninstall.
//
//	discovered -> installed -> enabled <-> disabled -> uninstalled
//
// Operations are serialized. A failed operation leaves neither persisted
// state nor hook registrations behind.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/manifest"
	"github.com/GoCodeAlone/modhooks/registry"
	"github.com/GoCodeAlone/modhooks/store"
)

// RouteMounter attaches and detaches the HTTP routes of enabled modules.
type RouteMounter interface {
	Mount(id string, provider modhooks.RouteProvider) error
	Unmount(id string) bool
}

// Service is the lifecycle API surface used by the admin adapter, the CLI
// and boot.
type Service struct {
	mu        sync.Mutex
	registry  *registry.Registry
	hooks     *modhooks.HookRegistry
	catalog   *modhooks.Catalog
	validator *manifest.Validator
	routes    RouteMounter
	subject   modhooks.Subject
	logger    modhooks.Logger

	active map[string]modhooks.Plugin
	order  []string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger modhooks.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubject emits lifecycle CloudEvents to subject.
func WithSubject(subject modhooks.Subject) Option {
	return func(s *Service) {
		s.subject = subject
	}
}

// WithRoutes mounts the routes of RouteProvider plugins on enable.
func WithRoutes(routes RouteMounter) Option {
	return func(s *Service) {
		s.routes = routes
	}
}

// WithValidator replaces the manifest validator used by Install.
func WithValidator(v *manifest.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// New creates a lifecycle service.
func New(reg *registry.Registry, hooks *modhooks.HookRegistry, catalog *modhooks.Catalog, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		hooks:    hooks,
		catalog:  catalog,
		logger:   modhooks.NopLogger{},
		active:   make(map[string]modhooks.Plugin),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = manifest.MustNewValidator()
	}
	return s
}

// outcome describes what an operation did, for logging and events.
type outcome struct {
	from    modhooks.State
	version string
	changed bool
}

// Install records a discovered module as installed.
func (s *Service) Install(ctx context.Context, id string) error {
	return s.InstallWithConfig(ctx, id, nil)
}

// InstallWithConfig installs a module with config overrides that take
// precedence over the manifest config whenever the module is enabled.
func (s *Service) InstallWithConfig(ctx context.Context, id string, overrides map[string]any) error {
	s.mu.Lock()
	out, err := s.install(ctx, id, overrides)
	s.mu.Unlock()
	s.report(ctx, id, "install", modhooks.StateInstalled, modhooks.EventTypeModuleInstalled, out, err)
	return err
}

func (s *Service) install(ctx context.Context, id string, overrides map[string]any) (outcome, error) {
	desc, state, err := s.lookup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{from: state, version: desc.Version}
	if state != modhooks.StateDiscovered {
		return out, &TransitionError{ID: id, From: state, Op: "install"}
	}
	if err := s.validator.Validate(desc); err != nil {
		return out, err
	}
	if err := s.checkNamespace(ctx, desc); err != nil {
		return out, err
	}
	if err := s.registry.MarkInstalled(ctx, desc, overrides); err != nil {
		return out, err
	}
	out.changed = true
	return out, nil
}

// checkNamespace rejects a module whose namespace is already claimed by an
// installed module.
func (s *Service) checkNamespace(ctx context.Context, desc modhooks.ModuleDescriptor) error {
	records, err := s.registry.Records(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		other, ok := s.registry.Get(rec.ID)
		if !ok || other.ID == desc.ID {
			continue
		}
		if other.Namespace == desc.Namespace {
			return fmt.Errorf("%w: namespace %s of %s is already used by %s",
				modhooks.ErrDuplicateIdentifier, desc.Namespace, desc.ID, other.ID)
		}
	}
	return nil
}

// Enable constructs the module's plugin, registers its hooks and routes and
// persists the enabled state. Every dependency must already be enabled.
func (s *Service) Enable(ctx context.Context, id string) error {
	s.mu.Lock()
	out, err := s.enable(ctx, id)
	s.mu.Unlock()
	s.report(ctx, id, "enable", modhooks.StateEnabled, modhooks.EventTypeModuleEnabled, out, err)
	return err
}

func (s *Service) enable(ctx context.Context, id string) (outcome, error) {
	desc, state, err := s.lookup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{from: state, version: desc.Version}
	if state != modhooks.StateInstalled && state != modhooks.StateDisabled {
		return out, &TransitionError{ID: id, From: state, Op: "enable"}
	}
	rec, err := s.registry.Record(ctx, id)
	if err != nil {
		return out, err
	}
	if err := s.activate(desc, rec); err != nil {
		return out, err
	}
	if err := s.registry.SetEnabled(ctx, id, true); err != nil {
		s.deactivate(id)
		return out, err
	}
	out.changed = true
	return out, nil
}

// Activate re-attaches a module that is persisted as enabled, as boot does
// after a restart. Nothing is persisted. Activating an active module is a
// no-op.
func (s *Service) Activate(ctx context.Context, id string) error {
	s.mu.Lock()
	out, err := s.reactivate(ctx, id)
	s.mu.Unlock()
	if err != nil {
		s.report(ctx, id, "activate", modhooks.StateEnabled, modhooks.EventTypeModuleEnabled, out, err)
		return err
	}
	if out.changed {
		s.logger.Info("Module activated", "module", id, "version", out.version)
	}
	return nil
}

func (s *Service) reactivate(ctx context.Context, id string) (outcome, error) {
	desc, state, err := s.lookup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{from: state, version: desc.Version}
	if state != modhooks.StateEnabled {
		return out, &TransitionError{ID: id, From: state, Op: "activate"}
	}
	if _, ok := s.active[id]; ok {
		return out, nil
	}
	rec, err := s.registry.Record(ctx, id)
	if err != nil {
		return out, err
	}
	if err := s.activate(desc, rec); err != nil {
		return out, err
	}
	out.changed = true
	return out, nil
}

// activate builds and attaches the plugin for desc. On failure every handler
// and route the plugin managed to register is removed again.
func (s *Service) activate(desc modhooks.ModuleDescriptor, rec store.Record) (err error) {
	id := desc.ID
	for _, dep := range desc.Dependencies {
		if _, ok := s.active[dep]; !ok {
			return fmt.Errorf("%w: %s requires %s", modhooks.ErrUnmetDependency, id, dep)
		}
	}

	plugin, err := s.catalog.New(id)
	if err != nil {
		return err
	}

	mounted := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s panicked during enable: %v", id, r)
		}
		if err != nil {
			s.detach(id, plugin, mounted)
		}
	}()

	if err := plugin.Initialize(modhooks.MergeConfig(desc.Config, rec.Overrides)); err != nil {
		return fmt.Errorf("initialize module %s: %w", id, err)
	}
	if err := plugin.RegisterHooks(s.hooks); err != nil {
		return fmt.Errorf("register hooks of module %s: %w", id, err)
	}
	if provider, ok := plugin.(modhooks.RouteProvider); ok && s.routes != nil {
		if err := s.routes.Mount(id, provider); err != nil {
			return fmt.Errorf("mount routes of module %s: %w", id, err)
		}
		mounted = true
	}

	s.active[id] = plugin
	s.order = append(s.order, id)
	return nil
}

// Disable removes the module's hooks and routes and persists the disabled
// state. Disabling a disabled module succeeds without side effects.
func (s *Service) Disable(ctx context.Context, id string) error {
	s.mu.Lock()
	out, err := s.disable(ctx, id)
	s.mu.Unlock()
	s.report(ctx, id, "disable", modhooks.StateDisabled, modhooks.EventTypeModuleDisabled, out, err)
	return err
}

func (s *Service) disable(ctx context.Context, id string) (outcome, error) {
	desc, state, err := s.lookup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{from: state, version: desc.Version}
	switch state {
	case modhooks.StateDisabled:
		return out, nil
	case modhooks.StateEnabled:
	default:
		return out, &TransitionError{ID: id, From: state, Op: "disable"}
	}
	if dependents := s.enabledDependents(ctx, id); len(dependents) > 0 {
		return out, fmt.Errorf("%w: %s is required by %v", modhooks.ErrHasDependents, id, dependents)
	}
	if err := s.registry.SetEnabled(ctx, id, false); err != nil {
		return out, err
	}
	s.deactivate(id)
	out.changed = true
	return out, nil
}

func (s *Service) enabledDependents(ctx context.Context, id string) []string {
	var dependents []string
	for _, other := range s.registry.List() {
		if !other.DependsOn(id) {
			continue
		}
		if _, active := s.active[other.ID]; active || s.registry.IsEnabled(ctx, other.ID) {
			dependents = append(dependents, other.ID)
		}
	}
	return dependents
}

// deactivate detaches an active plugin.
func (s *Service) deactivate(id string) {
	plugin, ok := s.active[id]
	if !ok {
		return
	}
	delete(s.active, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.detach(id, plugin, true)
}

// detach unregisters a plugin's hooks, sweeps any handler still owned by the
// module and unmounts its routes.
func (s *Service) detach(id string, plugin modhooks.Plugin, mounted bool) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Module panicked while unregistering hooks", "module", id, "panic", r)
			}
		}()
		plugin.UnregisterHooks(s.hooks)
	}()
	if n := s.hooks.UnregisterOwner(id); n > 0 {
		s.logger.Debug("Removed leftover hook handlers", "module", id, "handlers", n)
	}
	if mounted && s.routes != nil {
		s.routes.Unmount(id)
	}
}

// Uninstall deletes the record of a disabled module. The descriptor stays
// hidden until the next discovery.
func (s *Service) Uninstall(ctx context.Context, id string) error {
	s.mu.Lock()
	out, err := s.uninstall(ctx, id)
	s.mu.Unlock()
	s.report(ctx, id, "uninstall", modhooks.StateUninstalled, modhooks.EventTypeModuleUninstalled, out, err)
	return err
}

func (s *Service) uninstall(ctx context.Context, id string) (outcome, error) {
	desc, state, err := s.lookup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{from: state, version: desc.Version}
	if state != modhooks.StateDisabled {
		return out, &TransitionError{ID: id, From: state, Op: "uninstall"}
	}
	if err := s.registry.Remove(ctx, id); err != nil {
		return out, err
	}
	out.changed = true
	return out, nil
}

// Shutdown detaches every active plugin in reverse activation order without
// touching persisted state.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if plugin, ok := s.active[id]; ok {
			s.detach(id, plugin, true)
		}
	}
	s.active = make(map[string]modhooks.Plugin)
	s.order = nil
}

// Active returns the long-lived hook instance of an enabled module.
func (s *Service) Active(id string) (modhooks.Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.active[id]
	return p, ok
}

// ActiveIDs returns active modules in activation order.
func (s *Service) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// lookup returns the descriptor and derived state of id.
func (s *Service) lookup(ctx context.Context, id string) (modhooks.ModuleDescriptor, modhooks.State, error) {
	desc, ok := s.registry.Get(id)
	if !ok {
		return modhooks.ModuleDescriptor{}, "", fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
	}
	state, err := s.registry.State(ctx, id)
	if err != nil {
		return desc, "", err
	}
	return desc, state, nil
}

func (s *Service) report(ctx context.Context, id, op string, to modhooks.State, eventType string, out outcome, err error) {
	if err != nil {
		level := s.logger.Error
		var tErr *TransitionError
		if errors.As(err, &tErr) || errors.Is(err, modhooks.ErrNotFound) {
			level = s.logger.Warn
		}
		level("Module operation failed", "module", id, "op", op, "error", err)
		s.emit(ctx, modhooks.EventTypeModuleFailed, modhooks.ModuleEventData{
			Module:  id,
			From:    out.from,
			To:      to,
			Version: out.version,
			Error:   err.Error(),
		})
		return
	}
	if !out.changed {
		return
	}
	s.logger.Info("Module "+string(to), "module", id, "from", out.from, "version", out.version)
	s.emit(ctx, eventType, modhooks.ModuleEventData{
		Module:  id,
		From:    out.from,
		To:      to,
		Version: out.version,
	})
}

func (s *Service) emit(ctx context.Context, eventType string, data modhooks.ModuleEventData) {
	if s.subject == nil {
		return
	}
	event := modhooks.NewModuleEvent(eventType, modhooks.SourceLifecycle, data)
	if err := s.subject.NotifyObservers(ctx, event); err != nil {
		s.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
