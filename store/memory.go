package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modhooks"
)

// Memory is a Store kept in process memory. Update works on a copy of the
// record table and swaps it in only when fn succeeds.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(m.records))
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.records[id].Clone())
	}
	return out, nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	tx := &memoryTx{records: maps.Clone(m.records)}
	if err := fn(tx); err != nil {
		return err
	}
	m.records = tx.records
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type memoryTx struct {
	records map[string]Record
}

func (t *memoryTx) Get(id string) (Record, bool, error) {
	rec, ok := t.records[id]
	return rec.Clone(), ok, nil
}

func (t *memoryTx) Put(rec Record) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	t.records[rec.ID] = rec.Clone()
	return nil
}

func (t *memoryTx) Delete(id string) error {
	delete(t.records, id)
	return nil
}
