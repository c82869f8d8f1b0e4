// Package manifest reads module descriptors from disk.
//
// A module directory holds exactly one descriptor named module.json,
// module.yaml, module.yml, module.toml or module.hcl. Every format decodes to
// the same document shape:
//
//	id           = "combat"
//	name         = "Combat"
//	version      = "1.2.0"
//	enabled      = true            # optional, default true
//	namespace    = "Game\\Combat"  # optional, default id
//	dependencies = ["currency"]
//	config       = { base_damage = 10 }
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/GoCodeAlone/modhooks"
	"gopkg.in/yaml.v3"
)

// Supported descriptor formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatHCL  = "hcl"
)

// candidates are probed in order; the first file found wins.
var candidates = []struct {
	file   string
	format string
}{
	{"module.json", FormatJSON},
	{"module.yaml", FormatYAML},
	{"module.yml", FormatYAML},
	{"module.toml", FormatTOML},
	{"module.hcl", FormatHCL},
}

// rawManifest is the on-disk shape shared by every format.
type rawManifest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Namespace    string         `json:"namespace"`
	Description  string         `json:"description"`
	Enabled      *bool          `json:"enabled"`
	Config       map[string]any `json:"config"`
	Dependencies []string       `json:"dependencies"`
}

// Reader parses module descriptors. It holds no state.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() Reader {
	return Reader{}
}

// Read parses the descriptor found in location.
func (Reader) Read(location string) (modhooks.ModuleDescriptor, error) {
	return Read(location)
}

// Read parses the descriptor found in location. A directory without a
// descriptor yields an error wrapping modhooks.ErrMissingManifest; a
// descriptor that cannot be decoded yields modhooks.ErrMalformedManifest.
func Read(location string) (modhooks.ModuleDescriptor, error) {
	location = filepath.Clean(location)
	path, format, err := locate(location)
	if err != nil {
		return modhooks.ModuleDescriptor{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return modhooks.ModuleDescriptor{}, &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err),
		}
	}

	raw, err := decode(path, format, data)
	if err != nil {
		return modhooks.ModuleDescriptor{}, err
	}
	if raw.ID == "" {
		return modhooks.ModuleDescriptor{}, &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: missing required field %q", modhooks.ErrMalformedManifest, "id"),
		}
	}

	desc := modhooks.ModuleDescriptor{
		ID:           raw.ID,
		Name:         raw.Name,
		Version:      raw.Version,
		Namespace:    raw.Namespace,
		Description:  raw.Description,
		Location:     location,
		ManifestPath: path,
		Format:       format,
		Enabled:      true,
		Config:       raw.Config,
		Dependencies: raw.Dependencies,
	}
	if raw.Enabled != nil {
		desc.Enabled = *raw.Enabled
	}
	if desc.Namespace == "" {
		desc.Namespace = desc.ID
	}
	if desc.Config == nil {
		desc.Config = map[string]any{}
	}
	return desc, nil
}

// HasManifest reports whether location contains a descriptor file.
func HasManifest(location string) bool {
	_, _, err := locate(location)
	return err == nil
}

func locate(location string) (string, string, error) {
	for _, c := range candidates {
		path := filepath.Join(location, c.file)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, c.format, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", "", &ManifestError{
				Path: path,
				Err:  fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err),
			}
		}
	}
	return "", "", &ManifestError{Path: location, Err: modhooks.ErrMissingManifest}
}

func decode(path, format string, data []byte) (rawManifest, error) {
	if format == FormatJSON {
		return decodeJSON(path, data)
	}

	var (
		doc map[string]any
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(path, data)
	case FormatTOML:
		doc, err = decodeTOML(path, data)
	case FormatHCL:
		doc, err = decodeHCL(path, data)
	default:
		return rawManifest{}, &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: unsupported format %s", modhooks.ErrMalformedManifest, format),
		}
	}
	if err != nil {
		return rawManifest{}, err
	}

	// Normalise through JSON so every format maps onto rawManifest the same way.
	normalised, err := json.Marshal(doc)
	if err != nil {
		return rawManifest{}, &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err),
		}
	}
	var raw rawManifest
	if err := json.Unmarshal(normalised, &raw); err != nil {
		return rawManifest{}, &ManifestError{Path: path, Err: fieldError(err)}
	}
	return raw, nil
}

func decodeJSON(path string, data []byte) (rawManifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		mErr := &ManifestError{Path: path, Err: fieldError(err)}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			mErr.Line, mErr.Column = offsetPosition(data, syntaxErr.Offset)
		case errors.As(err, &typeErr):
			mErr.Line, mErr.Column = offsetPosition(data, typeErr.Offset)
		}
		return rawManifest{}, mErr
	}
	return raw, nil
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func decodeYAML(path string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		mErr := &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err),
		}
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			mErr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, mErr
	}
	return doc, nil
}

func decodeTOML(path string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		mErr := &ManifestError{
			Path: path,
			Err:  fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err),
		}
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			mErr.Line = parseErr.Position.Line
		}
		return nil, mErr
	}
	return doc, nil
}

func fieldError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Errorf("%w: field %q must be %s, got %s",
			modhooks.ErrMalformedManifest, typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return fmt.Errorf("%w: %v", modhooks.ErrMalformedManifest, err)
}
