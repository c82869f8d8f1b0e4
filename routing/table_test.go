package routing

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRoutes map[string]string

func (s staticRoutes) Routes(r chi.Router) {
	for pattern, body := range s {
		r.Get(pattern, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
	}
}

type panickyRoutes struct{}

func (panickyRoutes) Routes(chi.Router) { panic("bad routes") }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTable_MountAndUnmount(t *testing.T) {
	table := NewTable()
	assert.Equal(t, http.StatusNotFound, get(t, table, "/attack").Code)

	require.NoError(t, table.Mount("combat", staticRoutes{"/attack": "hit"}))
	require.NoError(t, table.Mount("achievements", staticRoutes{"/achievements": "list"}))

	rec := get(t, table, "/attack")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Body.String())
	assert.Equal(t, "combat", rec.Header().Get(ModuleHeader))
	assert.Equal(t, "achievements", get(t, table, "/achievements").Header().Get(ModuleHeader))
	assert.Equal(t, []string{"combat", "achievements"}, table.Mounted())

	assert.True(t, table.Unmount("combat"))
	assert.False(t, table.Unmount("combat"))
	assert.Equal(t, http.StatusNotFound, get(t, table, "/attack").Code)
	assert.Equal(t, http.StatusOK, get(t, table, "/achievements").Code)
}

func TestTable_RemountReplaces(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Mount("combat", staticRoutes{"/attack": "v1"}))
	require.NoError(t, table.Mount("combat", staticRoutes{"/attack": "v2"}))

	assert.Equal(t, "v2", get(t, table, "/attack").Body.String())
	assert.Equal(t, []string{"combat"}, table.Mounted())
}

func TestTable_PanickingProviderIsRejected(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Mount("combat", staticRoutes{"/attack": "hit"}))

	err := table.Mount("broken", panickyRoutes{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"combat"}, table.Mounted())
	assert.Equal(t, http.StatusOK, get(t, table, "/attack").Code)

	assert.Error(t, table.Mount("nil", nil))
}

func TestTable_RoutesAndMiddleware(t *testing.T) {
	calls := 0
	table := NewTable(WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			next.ServeHTTP(w, r)
		})
	}))
	require.NoError(t, table.Mount("combat", staticRoutes{"/attack": "hit"}))

	get(t, table, "/attack")
	assert.Equal(t, 1, calls)
	assert.Equal(t, []Route{{Module: "combat", Method: http.MethodGet, Pattern: "/attack"}}, table.Routes())
}
