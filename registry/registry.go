// Package registry discovers module descriptors and tracks which modules are
// installed and enabled.
//
// Descriptors are cached after the first scan; nothing walks the filesystem
// again until Invalidate or Rescan is called. Enabled flags are always read
// from the durable store, so the cache never disagrees with it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/manifest"
	"github.com/GoCodeAlone/modhooks/store"
)

// ManifestReader parses the descriptor in a module directory.
type ManifestReader interface {
	Read(location string) (modhooks.ModuleDescriptor, error)
}

// DiscoveryError reports a module directory that could not be registered.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Registry is the process-wide view of known modules.
type Registry struct {
	mu      sync.RWMutex
	roots   []string
	reader  ManifestReader
	store   store.Store
	logger  modhooks.Logger
	subject modhooks.Subject
	now     func() time.Time

	loaded bool
	byID   map[string]modhooks.ModuleDescriptor
	errs   []error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(logger modhooks.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReader replaces the manifest reader.
func WithReader(reader ManifestReader) Option {
	return func(r *Registry) {
		if reader != nil {
			r.reader = reader
		}
	}
}

// WithSubject emits discovery events to subject.
func WithSubject(subject modhooks.Subject) Option {
	return func(r *Registry) {
		r.subject = subject
	}
}

// WithClock overrides the time source used for persisted timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a registry over the given module roots.
func New(st store.Store, roots []string, opts ...Option) *Registry {
	r := &Registry{
		roots:  append([]string(nil), roots...),
		reader: manifest.NewReader(),
		store:  st,
		logger: modhooks.NopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roots returns the configured module roots.
func (r *Registry) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.roots...)
}

// Discover scans the immediate subdirectories of every root and replaces the
// cache with the result. Directories without a descriptor are skipped; any
// other failure is returned as a *DiscoveryError and never aborts the scan.
// When two directories declare the same identifier the first one wins.
func (r *Registry) Discover(ctx context.Context, roots []string) ([]modhooks.ModuleDescriptor, []error) {
	r.mu.Lock()
	list, errs, fresh := r.discoverLocked(ctx, roots)
	r.mu.Unlock()
	r.announce(ctx, fresh)
	return list, errs
}

// discoverLocked scans roots and returns the new cache contents, the scan
// failures and the descriptors that were not cached before.
func (r *Registry) discoverLocked(ctx context.Context, roots []string) ([]modhooks.ModuleDescriptor, []error, []modhooks.ModuleDescriptor) {
	previous := r.byID
	byID := make(map[string]modhooks.ModuleDescriptor)
	var errs []error

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			errs = append(errs, &DiscoveryError{Path: root, Err: err})
			r.logger.Warn("Module root unreadable", "root", root, "error", err)
			continue
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			desc, err := r.reader.Read(dir)
			if errors.Is(err, modhooks.ErrMissingManifest) {
				continue
			}
			if err != nil {
				errs = append(errs, &DiscoveryError{Path: dir, Err: err})
				r.logger.Warn("Skipping module", "path", dir, "error", err)
				continue
			}
			if first, dup := byID[desc.ID]; dup {
				dupErr := &DiscoveryError{
					Path: dir,
					Err:  fmt.Errorf("%w: %s already declared in %s", modhooks.ErrDuplicateIdentifier, desc.ID, first.Location),
				}
				errs = append(errs, dupErr)
				r.logger.Warn("Skipping module", "path", dir, "error", dupErr.Err)
				continue
			}
			byID[desc.ID] = desc
		}
	}

	r.byID = byID
	r.errs = errs
	r.loaded = true

	list := sortedDescriptors(byID)
	r.logger.Info("Module discovery finished", "modules", len(list), "errors", len(errs))
	var fresh []modhooks.ModuleDescriptor
	for _, desc := range list {
		if _, known := previous[desc.ID]; !known {
			fresh = append(fresh, desc)
		}
	}
	return list, errs, fresh
}

// announce emits a discovered event per descriptor. It must run without
// holding r.mu because observers may read the registry.
func (r *Registry) announce(ctx context.Context, fresh []modhooks.ModuleDescriptor) {
	for _, desc := range fresh {
		r.emit(ctx, modhooks.NewModuleEvent(modhooks.EventTypeModuleDiscovered, modhooks.SourceRegistry,
			modhooks.ModuleEventData{Module: desc.ID, To: modhooks.StateDiscovered, Version: desc.Version}))
	}
}

func sortedDescriptors(byID map[string]modhooks.ModuleDescriptor) []modhooks.ModuleDescriptor {
	list := make([]modhooks.ModuleDescriptor, 0, len(byID))
	for _, desc := range byID {
		list = append(list, desc.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// ensureLoaded runs discovery over the configured roots if the cache is cold.
func (r *Registry) ensureLoaded(ctx context.Context) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return
	}
	r.mu.Lock()
	var fresh []modhooks.ModuleDescriptor
	if !r.loaded {
		_, _, fresh = r.discoverLocked(ctx, r.roots)
	}
	r.mu.Unlock()
	r.announce(ctx, fresh)
}

// Invalidate drops the cache. The next read rescans the configured roots.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
}

// Rescan invalidates the cache and rediscovers the configured roots.
func (r *Registry) Rescan(ctx context.Context) ([]modhooks.ModuleDescriptor, []error) {
	r.mu.Lock()
	list, errs, fresh := r.discoverLocked(ctx, r.roots)
	r.mu.Unlock()
	r.announce(ctx, fresh)
	r.emit(ctx, modhooks.NewCloudEvent(modhooks.EventTypeRegistryRescanned, modhooks.SourceRegistry, map[string]any{
		"modules": len(list),
		"errors":  len(errs),
	}, nil))
	return list, errs
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (modhooks.ModuleDescriptor, bool) {
	r.ensureLoaded(context.Background())
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byID[id]
	if !ok {
		return modhooks.ModuleDescriptor{}, false
	}
	return desc.Clone(), true
}

// List returns every known descriptor sorted by identifier.
func (r *Registry) List() []modhooks.ModuleDescriptor {
	r.ensureLoaded(context.Background())
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedDescriptors(r.byID)
}

// Errors returns the failures of the last discovery.
func (r *Registry) Errors() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]error(nil), r.errs...)
}

// Record returns the persisted record of an installed module.
func (r *Registry) Record(ctx context.Context, id string) (store.Record, error) {
	return r.store.Get(ctx, id)
}

// Records returns every persisted record.
func (r *Registry) Records(ctx context.Context) ([]store.Record, error) {
	return r.store.List(ctx)
}

// IsEnabled reports whether the module is persisted as enabled.
func (r *Registry) IsEnabled(ctx context.Context, id string) bool {
	rec, err := r.store.Get(ctx, id)
	return err == nil && rec.Enabled
}

// State derives the lifecycle state of a module from its record and
// descriptor.
func (r *Registry) State(ctx context.Context, id string) (modhooks.State, error) {
	rec, err := r.store.Get(ctx, id)
	switch {
	case err == nil:
		return rec.State, nil
	case !errors.Is(err, modhooks.ErrNotFound):
		return "", err
	}
	if _, ok := r.Get(id); ok {
		return modhooks.StateDiscovered, nil
	}
	return "", fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
}

// SetEnabled persists the enabled flag of an installed module in a single
// transaction. Setting the flag a module already has succeeds without
// writing anything.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return r.store.Update(ctx, func(tx store.Tx) error {
		rec, ok, err := tx.Get(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is not installed", modhooks.ErrNotFound, id)
		}
		if rec.Enabled == enabled {
			return nil
		}
		rec.Enabled = enabled
		rec.State = modhooks.StateDisabled
		if enabled {
			rec.State = modhooks.StateEnabled
		}
		rec.UpdatedAt = r.now().UTC()
		return tx.Put(rec)
	})
}

// MarkInstalled persists a new installed record for desc.
func (r *Registry) MarkInstalled(ctx context.Context, desc modhooks.ModuleDescriptor, overrides map[string]any) error {
	return r.store.Update(ctx, func(tx store.Tx) error {
		existing, ok, err := tx.Get(desc.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s is already %s", modhooks.ErrInvalidTransition, desc.ID, existing.State)
		}
		now := r.now().UTC()
		return tx.Put(store.Record{
			ID:          desc.ID,
			State:       modhooks.StateInstalled,
			InstalledAt: now,
			UpdatedAt:   now,
			Overrides:   modhooks.CloneConfig(overrides),
		})
	})
}

// Remove deletes the record of id and evicts its descriptor until the next
// discovery.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Update(ctx, func(tx store.Tx) error {
		return tx.Delete(id)
	}); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
	return nil
}

func (r *Registry) emit(ctx context.Context, event modhooks.CloudEvent) {
	if r.subject == nil {
		return
	}
	if err := r.subject.NotifyObservers(ctx, event); err != nil {
		r.logger.Debug("Failed to notify observers", "event", event.Type(), "error", err)
	}
}
