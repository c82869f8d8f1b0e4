package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/boot"
	"github.com/GoCodeAlone/modhooks/cmd/modhooks/cmd"
	"github.com/GoCodeAlone/modhooks/config"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/GoCodeAlone/modhooks/plugins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	roots, err := filepath.Abs("../../../plugins")
	require.NoError(t, err)
	dir := t.TempDir()
	content := fmt.Sprintf(`module_roots: [%q]
store:
  driver: sqlite
  path: %q
log:
  level: error
`, roots, filepath.Join(dir, "modhooks.db"))
	path := filepath.Join(dir, "modhooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	rootCmd := cmd.NewRootCommand()
	assert.Equal(t, "modhooks", rootCmd.Use)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "feature modules")
	for _, sub := range []string{"serve", "modules", "hooks", "version"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, writeConfig(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modhooks v")
}

func TestModuleCommands(t *testing.T) {
	configPath := writeConfig(t)

	out, err := run(t, configPath, "modules", "install", "currency", "--set", "symbol=€", "--enable")
	require.NoError(t, err)
	assert.Contains(t, out, "currency enabled")

	out, err = run(t, configPath, "modules", "list", "--json")
	require.NoError(t, err)
	var modules []lifecycle.ModuleStatus
	require.NoError(t, json.Unmarshal([]byte(out), &modules))
	byID := make(map[string]lifecycle.ModuleStatus)
	for _, m := range modules {
		byID[m.ID] = m
	}
	assert.Equal(t, modhooks.StateEnabled, byID["currency"].State)
	assert.True(t, byID["currency"].Active, "enabled modules are re-attached on every run")
	assert.Equal(t, modhooks.StateDiscovered, byID["combat"].State)

	out, err = run(t, configPath, "modules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "achievements")

	out, err = run(t, configPath, "hooks")
	require.NoError(t, err)
	assert.Contains(t, out, modhooks.HookCurrencyFormat)
	assert.Contains(t, out, "currency")

	_, err = run(t, configPath, "modules", "enable", "combat")
	assert.ErrorIs(t, err, modhooks.ErrInvalidTransition)
	_, err = run(t, configPath, "modules", "uninstall", "currency")
	assert.ErrorIs(t, err, modhooks.ErrInvalidTransition)

	out, err = run(t, configPath, "modules", "disable", "currency")
	require.NoError(t, err)
	assert.Contains(t, out, "currency disabled")
	out, err = run(t, configPath, "modules", "uninstall", "currency")
	require.NoError(t, err)
	assert.Contains(t, out, "uninstalled currency")
}

func TestModulesInstall_RejectsBadSet(t *testing.T) {
	_, err := run(t, writeConfig(t), "modules", "install", "currency", "--set", "nokey")
	assert.ErrorContains(t, err, "key=value")
}

func TestNewHandler(t *testing.T) {
	cfg := config.Default()
	cfg.ModuleRoots = []string{"../../../plugins"}
	cfg.Store = config.StoreConfig{Driver: config.DriverMemory}
	rt, err := boot.New(cfg, plugins.DefaultCatalog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx := context.Background()
	_, err = rt.Boot(ctx)
	require.NoError(t, err)

	h := cmd.NewHandler(rt)
	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, get("/admin/modules"))
	assert.Equal(t, http.StatusNotFound, get("/attack"))

	require.NoError(t, rt.Lifecycle().Install(ctx, "currency"))
	require.NoError(t, rt.Lifecycle().Enable(ctx, "currency"))
	require.NoError(t, rt.Lifecycle().Install(ctx, "combat"))
	require.NoError(t, rt.Lifecycle().Enable(ctx, "combat"))
	assert.Equal(t, http.StatusOK, get("/attack"))

	require.NoError(t, rt.Lifecycle().Disable(ctx, "combat"))
	assert.Equal(t, http.StatusNotFound, get("/attack"))
}
