package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoCodeAlone/modhooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, file, content string) string {
	t.Helper()
	moduleDir := filepath.Join(dir, "combat")
	require.NoError(t, os.MkdirAll(moduleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, file), []byte(content), 0o600))
	return moduleDir
}

func TestRead_AllFormatsParseIdentically(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "module.json",
			content: `{
  "id": "combat",
  "name": "Combat",
  "version": "1.2.0",
  "dependencies": ["currency"],
  "config": {"base_damage": 10, "labels": {"hit": "Hit!"}}
}`,
		},
		{
			name: "yaml",
			file: "module.yaml",
			content: `id: combat
name: Combat
version: 1.2.0
dependencies: [currency]
config:
  base_damage: 10
  labels:
    hit: Hit!
`,
		},
		{
			name: "toml",
			file: "module.toml",
			content: `id = "combat"
name = "Combat"
version = "1.2.0"
dependencies = ["currency"]

[config]
base_damage = 10

[config.labels]
hit = "Hit!"
`,
		},
		{
			name: "hcl",
			file: "module.hcl",
			content: `id           = "combat"
name         = "Combat"
version      = "1.2.0"
dependencies = ["currency"]
config = {
  base_damage = 10
  labels = {
    hit = "Hit!"
  }
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeManifest(t, t.TempDir(), tt.file, tt.content)

			desc, err := Read(dir)
			require.NoError(t, err)

			assert.Equal(t, "combat", desc.ID)
			assert.Equal(t, "Combat", desc.Name)
			assert.Equal(t, "1.2.0", desc.Version)
			assert.Equal(t, "combat", desc.Namespace, "namespace defaults to id")
			assert.True(t, desc.Enabled, "enabled defaults to true")
			assert.Equal(t, []string{"currency"}, desc.Dependencies)
			assert.Equal(t, map[string]any{
				"base_damage": float64(10),
				"labels":      map[string]any{"hit": "Hit!"},
			}, desc.Config)
			assert.Equal(t, dir, desc.Location)
			assert.Equal(t, filepath.Join(dir, tt.file), desc.ManifestPath)
		})
	}
}

func TestRead_ExplicitDisabledAndNamespace(t *testing.T) {
	dir := writeManifest(t, t.TempDir(), "module.yml", `id: combat
name: Combat
version: "2.0"
enabled: false
namespace: Game\Combat
`)

	desc, err := Read(dir)
	require.NoError(t, err)
	assert.False(t, desc.Enabled)
	assert.Equal(t, `Game\Combat`, desc.Namespace)
	assert.Equal(t, FormatYAML, desc.Format)
	assert.NotNil(t, desc.Config)
}

func TestRead_PrefersJSONOverOtherFormats(t *testing.T) {
	dir := writeManifest(t, t.TempDir(), "module.json", `{"id": "from-json", "name": "J", "version": "1.0.0"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.yaml"), []byte("id: from-yaml\n"), 0o600))

	desc, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-json", desc.ID)
}

func TestRead_MissingManifest(t *testing.T) {
	_, err := Read(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, modhooks.ErrMissingManifest)
	assert.False(t, HasManifest(t.TempDir()))
}

func TestRead_MalformedManifestCarriesPosition(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantLine int
	}{
		{"json syntax", "module.json", "{\n  \"id\": \"combat\",\n  \"name\": \n}", 4},
		{"json wrong type", "module.json", "{\n  \"id\": \"combat\",\n  \"enabled\": \"yes\"\n}", 3},
		{"yaml syntax", "module.yaml", "id: combat\nname: [unclosed\n", 0},
		{"toml syntax", "module.toml", "id = \"combat\"\nname = \n", -1},
		{"hcl syntax", "module.hcl", "id = \"combat\"\nname = {\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeManifest(t, t.TempDir(), tt.file, tt.content)

			_, err := Read(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, modhooks.ErrMalformedManifest)

			var mErr *ManifestError
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, filepath.Join(dir, tt.file), mErr.Path)
			switch {
			case tt.wantLine > 0:
				assert.Equal(t, tt.wantLine, mErr.Line)
			case tt.wantLine < 0:
				assert.Positive(t, mErr.Line)
			}
		})
	}
}

func TestRead_MissingIDIsMalformed(t *testing.T) {
	dir := writeManifest(t, t.TempDir(), "module.json", `{"name": "Combat", "version": "1.0.0"}`)

	_, err := Read(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, modhooks.ErrMalformedManifest)
	assert.Contains(t, err.Error(), `"id"`)
}

func TestReader_DelegatesToRead(t *testing.T) {
	dir := writeManifest(t, t.TempDir(), "module.json", `{"id": "combat", "name": "Combat", "version": "1.0.0"}`)

	desc, err := NewReader().Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "combat", desc.ID)
	assert.True(t, HasManifest(dir))
}

func TestOffsetPosition(t *testing.T) {
	data := []byte("ab\ncd\nef")
	line, col := offsetPosition(data, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	line, col = offsetPosition(data, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)
}
