// Package store persists module lifecycle state.
//
// The durable store is authoritative: hook tables and plugin instances are
// rebuilt from it at boot, so a record only carries what cannot be derived
// from the module manifest.
package store

import (
	"context"
	"time"

	"github.com/GoCodeAlone/modhooks"
)

// Record is the persisted state of an installed module.
type Record struct {
	ID          string         `json:"id"`
	State       modhooks.State `json:"state"`
	Enabled     bool           `json:"enabled"`
	InstalledAt time.Time      `json:"installedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	// Overrides are install-time config values that win over the manifest config.
	Overrides map[string]any `json:"overrides,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	r.Overrides = modhooks.CloneConfig(r.Overrides)
	return r
}

// Tx is the view of the store inside a single Update call.
type Tx interface {
	// Get returns the record for id; ok is false when none exists.
	Get(id string) (rec Record, ok bool, err error)

	// Put inserts or replaces a record.
	Put(rec Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(id string) error
}

// Store is durable module state.
type Store interface {
	// Get returns the record for id or an error wrapping modhooks.ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns every record sorted by ID.
	List(ctx context.Context) ([]Record, error)

	// Update runs fn in a single transaction. When fn returns an error
	// nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the store.
	Close() error
}
