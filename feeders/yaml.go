package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLFeeder reads YAML files.
type YAMLFeeder struct {
	Path string
}

// NewYAMLFeeder creates a new YAMLFeeder that reads from the specified YAML file
func NewYAMLFeeder(filePath string) *YAMLFeeder {
	return &YAMLFeeder{Path: filePath}
}

// Feed reads the YAML file and populates the provided structure
func (y *YAMLFeeder) Feed(target any) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", y.Path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse YAML file %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey reads a YAML file and extracts a specific key
func (y *YAMLFeeder) FeedKey(key string, target any) error {
	return feedKey(y, key, target, yaml.Marshal, yaml.Unmarshal, "YAML file")
}
