// Package sqlite provides a SQLite-backed module state store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/store"
	"github.com/GoCodeAlone/modhooks/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store persists module records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const selectColumns = `SELECT id, state, enabled, installed_at, updated_at, overrides FROM modules`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		rec                  store.Record
		state                string
		enabled              int
		installedAt, updated int64
		overrides            string
	)
	if err := row.Scan(&rec.ID, &state, &enabled, &installedAt, &updated, &overrides); err != nil {
		return store.Record{}, err
	}
	rec.State = modhooks.State(state)
	rec.Enabled = enabled != 0
	rec.InstalledAt = fromMillis(installedAt)
	rec.UpdatedAt = fromMillis(updated)
	if overrides != "" && overrides != "{}" {
		if err := json.Unmarshal([]byte(overrides), &rec.Overrides); err != nil {
			return store.Record{}, fmt.Errorf("decode overrides of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	row := s.sqlDB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%w: %s", modhooks.ErrNotFound, id)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get module %s: %w", id, err)
	}
	return rec, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list modules: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return out, nil
}

// Update implements store.Store. fn runs inside one SQL transaction.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *tx) Get(id string) (store.Record, bool, error) {
	rec, err := scanRecord(t.tx.QueryRowContext(t.ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, fmt.Errorf("get module %s: %w", id, err)
	}
	return rec, true, nil
}

func (t *tx) Put(rec store.Record) error {
	if rec.ID == "" {
		return store.ErrEmptyID
	}
	overrides := "{}"
	if len(rec.Overrides) > 0 {
		data, err := json.Marshal(rec.Overrides)
		if err != nil {
			return fmt.Errorf("encode overrides of %s: %w", rec.ID, err)
		}
		overrides = string(data)
	}
	enabled := 0
	if rec.Enabled {
		enabled = 1
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO modules (id, state, enabled, installed_at, updated_at, overrides)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   enabled = excluded.enabled,
		   installed_at = excluded.installed_at,
		   updated_at = excluded.updated_at,
		   overrides = excluded.overrides`,
		rec.ID, string(rec.State), enabled, toMillis(rec.InstalledAt), toMillis(rec.UpdatedAt), overrides,
	)
	if err != nil {
		return fmt.Errorf("put module %s: %w", rec.ID, err)
	}
	return nil
}

func (t *tx) Delete(id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM modules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete module %s: %w", id, err)
	}
	return nil
}
