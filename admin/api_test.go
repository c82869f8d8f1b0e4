package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/boot"
	"github.com/GoCodeAlone/modhooks/config"
	"github.com/GoCodeAlone/modhooks/health"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/GoCodeAlone/modhooks/plugins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.ModuleRoots = []string{"../plugins"}
	cfg.Store = config.StoreConfig{Driver: config.DriverMemory}

	rt, err := boot.New(cfg, plugins.DefaultCatalog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	_, err = rt.Boot(context.Background())
	require.NoError(t, err)

	api := New(rt.Lifecycle(), rt.Hooks(), rt, WithMetrics(rt.Metrics()), WithHealth(rt.Health()))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestAPI_ModuleLifecycle(t *testing.T) {
	srv := newServer(t)

	code, body := do(t, srv, http.MethodGet, "/modules", "")
	require.Equal(t, http.StatusOK, code)
	modules := decode[[]lifecycle.ModuleStatus](t, body)
	require.Len(t, modules, 3)
	for _, m := range modules {
		assert.Equal(t, modhooks.StateDiscovered, m.State, m.ID)
	}

	code, _ = do(t, srv, http.MethodPost, "/modules/currency/enable", "")
	assert.Equal(t, http.StatusConflict, code, "enable requires install")

	code, body = do(t, srv, http.MethodPost, "/modules/currency/install", `{"config": {"symbol": "€"}}`)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, modhooks.StateInstalled, decode[lifecycle.ModuleStatus](t, body).State)

	code, _ = do(t, srv, http.MethodPost, "/modules/combat/install", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, srv, http.MethodPost, "/modules/combat/enable", "")
	assert.Equal(t, http.StatusConflict, code, "currency is not enabled yet")

	code, _ = do(t, srv, http.MethodPost, "/modules/currency/enable", "")
	require.Equal(t, http.StatusOK, code)
	code, body = do(t, srv, http.MethodPost, "/modules/combat/enable", "")
	require.Equal(t, http.StatusOK, code)
	status := decode[lifecycle.ModuleStatus](t, body)
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.Handlers)

	code, _ = do(t, srv, http.MethodPost, "/modules/currency/disable", "")
	assert.Equal(t, http.StatusConflict, code, "combat depends on currency")
	code, _ = do(t, srv, http.MethodDelete, "/modules/combat", "")
	assert.Equal(t, http.StatusConflict, code, "enabled modules cannot be uninstalled")

	code, _ = do(t, srv, http.MethodPost, "/modules/combat/disable", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, srv, http.MethodDelete, "/modules/combat", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, srv, http.MethodGet, "/modules/combat", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, srv, http.MethodPost, "/modules/rescan", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, decode[RescanResponse](t, body).Modules, "combat")
}

func TestAPI_Hooks(t *testing.T) {
	srv := newServer(t)
	do(t, srv, http.MethodPost, "/modules/currency/install", "")
	do(t, srv, http.MethodPost, "/modules/currency/enable", "")

	code, body := do(t, srv, http.MethodGet, "/hooks", "")
	require.Equal(t, http.StatusOK, code)
	hooks := decode[[]HookInfo](t, body)

	var found bool
	for _, h := range hooks {
		if h.Name != modhooks.HookCurrencyFormat {
			continue
		}
		found = true
		require.Len(t, h.Handlers, 1)
		assert.Equal(t, "currency", h.Handlers[0].Owner)
	}
	assert.True(t, found)
}

func TestAPI_Metrics(t *testing.T) {
	srv := newServer(t)
	code, body := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `modhooks_modules{state="discovered"} 3`)
}

func TestAPI_Health(t *testing.T) {
	srv := newServer(t)
	do(t, srv, http.MethodPost, "/modules/currency/install", "")
	do(t, srv, http.MethodPost, "/modules/currency/enable", "")

	code, body := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	result := decode[health.Aggregated](t, body)
	assert.Equal(t, health.StatusHealthy, result.Readiness)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, "currency", result.Reports[0].Module)
	assert.Equal(t, "formatter", result.Reports[0].Component)
}

func TestAPI_BadRequests(t *testing.T) {
	srv := newServer(t)

	code, _ := do(t, srv, http.MethodPost, "/modules/currency/install", `{"config":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, srv, http.MethodGet, "/modules/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, decode[errorResponse](t, body).Error, "missing")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", modhooks.ErrNotFound), http.StatusNotFound},
		{&lifecycle.TransitionError{ID: "x", From: modhooks.StateEnabled, Op: "uninstall"}, http.StatusConflict},
		{modhooks.ErrUnmetDependency, http.StatusConflict},
		{modhooks.ErrHasDependents, http.StatusConflict},
		{modhooks.ErrInvalidManifest, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
