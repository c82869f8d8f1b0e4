package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/GoCodeAlone/modhooks"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/manifest.schema.json
var manifestSchema []byte

const schemaURL = "https://modhooks.gocodealone.dev/schema/manifest.schema.json"

// Validator checks descriptors against the structural rules of the manifest
// schema. Reading is lenient; validation happens when a module is installed.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded manifest schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNewValidator is NewValidator that panics. The schema is embedded, so a
// failure here is a build defect.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate reports every structural problem of desc. The returned error wraps
// modhooks.ErrInvalidManifest.
func (v *Validator) Validate(desc modhooks.ModuleDescriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", modhooks.ErrInvalidManifest, desc.ID, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", modhooks.ErrInvalidManifest, desc.ID, err)
	}
	if err := v.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %w", modhooks.ErrInvalidManifest, location(desc), err)
	}
	if slices.Contains(desc.Dependencies, desc.ID) {
		return fmt.Errorf("%w: %s: module depends on itself", modhooks.ErrInvalidManifest, location(desc))
	}
	return nil
}

func location(desc modhooks.ModuleDescriptor) string {
	if desc.ManifestPath != "" {
		return desc.ManifestPath
	}
	return desc.ID
}
