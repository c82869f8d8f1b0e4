package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/store"
)

// ModuleStatus is one row of the module listing.
type ModuleStatus struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Namespace    string         `json:"namespace,omitempty"`
	Description  string         `json:"description,omitempty"`
	State        modhooks.State `json:"state"`
	Enabled      bool           `json:"enabled"`
	Active       bool           `json:"active"`
	Handlers     int            `json:"handlers"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Location     string         `json:"location,omitempty"`
	InstalledAt  *time.Time     `json:"installedAt,omitempty"`
	UpdatedAt    *time.Time     `json:"updatedAt,omitempty"`

	// Missing is set for a persisted module whose descriptor is no longer
	// discovered.
	Missing bool `json:"missing,omitempty"`
}

// ListModules returns every discovered or persisted module sorted by
// identifier.
func (s *Service) ListModules(ctx context.Context) ([]ModuleStatus, error) {
	records, err := s.registry.Records(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	owned := s.handlersByOwner()
	descs := s.registry.List()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ModuleStatus
	seen := make(map[string]bool)
	for _, desc := range descs {
		seen[desc.ID] = true
		rec, installed := byID[desc.ID]
		out = append(out, s.status(desc, rec, installed, owned))
	}
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		st := s.status(modhooks.ModuleDescriptor{ID: rec.ID}, rec, true, owned)
		st.Missing = true
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ModuleStatus returns the status of a single module.
func (s *Service) ModuleStatus(ctx context.Context, id string) (ModuleStatus, error) {
	desc, ok := s.registry.Get(id)
	rec, err := s.registry.Record(ctx, id)
	installed := err == nil
	if err != nil && !errors.Is(err, modhooks.ErrNotFound) {
		return ModuleStatus{}, err
	}
	if !ok && !installed {
		return ModuleStatus{}, fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
	}
	if !ok {
		desc = modhooks.ModuleDescriptor{ID: id}
	}
	owned := s.handlersByOwner()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status(desc, rec, installed, owned)
	st.Missing = !ok
	return st, nil
}

func (s *Service) status(desc modhooks.ModuleDescriptor, rec store.Record, installed bool, owned map[string]int) ModuleStatus {
	st := ModuleStatus{
		ID:           desc.ID,
		Name:         desc.Name,
		Version:      desc.Version,
		Namespace:    desc.Namespace,
		Description:  desc.Description,
		State:        modhooks.StateDiscovered,
		Dependencies: desc.Dependencies,
		Location:     desc.Location,
		Handlers:     owned[desc.ID],
	}
	if installed {
		st.State = rec.State
		st.Enabled = rec.Enabled
		installedAt, updatedAt := rec.InstalledAt, rec.UpdatedAt
		st.InstalledAt = &installedAt
		st.UpdatedAt = &updatedAt
	}
	plugin, active := s.active[desc.ID]
	st.Active = active
	if d, ok := plugin.(modhooks.Describer); ok && st.Description == "" {
		st.Description = d.Describe()
	}
	return st
}

// handlersByOwner counts registered hook handlers per owning module.
func (s *Service) handlersByOwner() map[string]int {
	owned := make(map[string]int)
	for _, hook := range s.hooks.Hooks() {
		for _, h := range s.hooks.Handlers(hook) {
			if h.Owner != "" {
				owned[h.Owner]++
			}
		}
	}
	return owned
}
