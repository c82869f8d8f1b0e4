package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TOMLFeeder reads TOML files.
type TOMLFeeder struct {
	Path string
}

// NewTOMLFeeder creates a new TOMLFeeder that reads from the specified TOML file
func NewTOMLFeeder(filePath string) *TOMLFeeder {
	return &TOMLFeeder{Path: filePath}
}

// Feed reads the TOML file and populates the provided structure
func (t *TOMLFeeder) Feed(target any) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	if _, err := toml.DecodeFile(t.Path, target); err != nil {
		return fmt.Errorf("failed to parse TOML file %s: %w", t.Path, err)
	}
	return nil
}

// FeedKey reads a TOML file and extracts a specific key
func (t *TOMLFeeder) FeedKey(key string, target any) error {
	return feedKey(t, key, target, toml.Marshal, toml.Unmarshal, "TOML file")
}
