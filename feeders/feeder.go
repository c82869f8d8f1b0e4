// Package feeders fill configuration structs from files and the
// environment. Feeders are applied in order; each one only sets the values
// its source defines, so later feeders override earlier ones.
package feeders

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
)

// Feeder populates a configuration struct.
type Feeder interface {
	Feed(target any) error
}

// KeyFeeder can populate a target from a single top-level key of its source.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ForFile picks a feeder by file extension.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLFeeder(path), nil
	case ".toml":
		return NewTOMLFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func checkTarget(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return wrapTargetError(target)
	}
	return nil
}

// feedKey is a common helper function for extracting specific keys from
// config files.
func feedKey(
	feeder Feeder,
	key string,
	target any,
	marshalFunc func(any) ([]byte, error),
	unmarshalFunc func([]byte, any) error,
	fileType string,
) error {
	var allData map[string]any
	if err := feeder.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read %s: %w", fileType, err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	// Remarshal and unmarshal to handle type conversions
	valueBytes, err := marshalFunc(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", fileType, err)
	}
	if err = unmarshalFunc(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s data: %w", fileType, err)
	}
	return nil
}
