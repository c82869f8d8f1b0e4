package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/store"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModule(t *testing.T, root, dir, id string) {
	t.Helper()
	writeRaw(t, root, dir, "module.json",
		fmt.Sprintf(`{"id": %q, "name": %q, "version": "1.0.0"}`, id, id))
}

func writeRaw(t *testing.T, root, dir, file, content string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, file), []byte(content), 0o600))
}

func ids(descs []modhooks.ModuleDescriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.ID)
	}
	return out
}

func TestDiscover_SkipsMalformedAndKeepsTheRest(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", "combat")
	writeRaw(t, root, "b", "module.json", `{"id": "broken", "name": `)
	writeModule(t, root, "c", "currency")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-manifest"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o600))

	r := New(store.NewMemory(), []string{root})
	descs, errs := r.Discover(context.Background(), []string{root})

	assert.Equal(t, []string{"combat", "currency"}, ids(descs))
	require.Len(t, errs, 1)
	var dErr *DiscoveryError
	require.True(t, errors.As(errs[0], &dErr))
	assert.Equal(t, filepath.Join(root, "b"), dErr.Path)
	assert.ErrorIs(t, errs[0], modhooks.ErrMalformedManifest)
	assert.Len(t, r.Errors(), 1)
}

func TestDiscover_DuplicateIdentifierFirstWins(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, "a-combat", "module.json", `{"id": "combat", "name": "First", "version": "1.0.0"}`)
	writeRaw(t, root, "b-combat", "module.yaml", "id: combat\nname: Second\nversion: 2.0.0\n")

	r := New(store.NewMemory(), nil)
	descs, errs := r.Discover(context.Background(), []string{root})

	require.Len(t, descs, 1)
	assert.Equal(t, "First", descs[0].Name)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], modhooks.ErrDuplicateIdentifier)
}

func TestDiscover_UnreadableRootIsReported(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", "combat")
	missing := filepath.Join(root, "does-not-exist")

	r := New(store.NewMemory(), nil)
	descs, errs := r.Discover(context.Background(), []string{missing, root})

	assert.Equal(t, []string{"combat"}, ids(descs))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

func TestRegistry_CacheUntilInvalidate(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", "combat")

	r := New(store.NewMemory(), []string{root})
	assert.Equal(t, []string{"combat"}, ids(r.List()))

	writeModule(t, root, "b", "currency")
	assert.Equal(t, []string{"combat"}, ids(r.List()), "reads never rescan implicitly")
	_, ok := r.Get("currency")
	assert.False(t, ok)

	r.Invalidate()
	assert.Equal(t, []string{"combat", "currency"}, ids(r.List()))
}

func TestRegistry_Rescan(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", "combat")
	r := New(store.NewMemory(), []string{root})
	require.Len(t, r.List(), 1)

	writeModule(t, root, "b", "currency")
	descs, errs := r.Rescan(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"combat", "currency"}, ids(descs))
}

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeModule(t, root, "a", "combat")
	r := New(store.NewMemory(), []string{root})

	state, err := r.State(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, modhooks.StateDiscovered, state)

	_, err = r.State(ctx, "ghost")
	assert.ErrorIs(t, err, modhooks.ErrNotFound)

	err = r.SetEnabled(ctx, "combat", true)
	assert.ErrorIs(t, err, modhooks.ErrNotFound, "not installed yet")

	desc, ok := r.Get("combat")
	require.True(t, ok)
	require.NoError(t, r.MarkInstalled(ctx, desc, map[string]any{"k": "v"}))
	assert.ErrorIs(t, r.MarkInstalled(ctx, desc, nil), modhooks.ErrInvalidTransition)

	state, err = r.State(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, modhooks.StateInstalled, state)
	assert.False(t, r.IsEnabled(ctx, "combat"))

	require.NoError(t, r.SetEnabled(ctx, "combat", true))
	assert.True(t, r.IsEnabled(ctx, "combat"))
	rec, err := r.Record(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, modhooks.StateEnabled, rec.State)
	assert.Equal(t, "v", rec.Overrides["k"])

	updated := rec.UpdatedAt
	require.NoError(t, r.SetEnabled(ctx, "combat", true), "setting the current value succeeds")
	rec, err = r.Record(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, updated, rec.UpdatedAt, "idempotent set writes nothing")

	require.NoError(t, r.SetEnabled(ctx, "combat", false))
	state, err = r.State(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, modhooks.StateDisabled, state)

	require.NoError(t, r.Remove(ctx, "combat"))
	_, ok = r.Get("combat")
	assert.False(t, ok, "evicted until the next discovery")
	_, err = r.Record(ctx, "combat")
	assert.ErrorIs(t, err, modhooks.ErrNotFound)

	_, _ = r.Rescan(ctx)
	state, err = r.State(ctx, "combat")
	require.NoError(t, err)
	assert.Equal(t, modhooks.StateDiscovered, state)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (o *recordingObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingObserver) ObserverID() string { return "recorder" }

func (o *recordingObserver) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Type())
	}
	return out
}

func TestRegistry_EmitsDiscoveryEvents(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "a", "combat")

	subject := modhooks.NewEventSubject(nil)
	obs := &recordingObserver{}
	require.NoError(t, subject.RegisterObserver(obs))

	r := New(store.NewMemory(), []string{root}, WithSubject(subject))
	r.List()
	writeModule(t, root, "b", "currency")
	_, _ = r.Rescan(context.Background())

	assert.Equal(t, []string{
		modhooks.EventTypeModuleDiscovered,
		modhooks.EventTypeModuleDiscovered,
		modhooks.EventTypeRegistryRescanned,
	}, obs.types())
}
