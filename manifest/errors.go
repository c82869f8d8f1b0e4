package manifest

import (
	"bytes"
	"fmt"
)

// ManifestError carries the location of a manifest problem so an operator can
// find it. Err wraps modhooks.ErrMissingManifest or modhooks.ErrMalformedManifest.
type ManifestError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ManifestError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("manifest %s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("manifest %s:%d: %v", e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
	}
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// offsetPosition converts a byte offset into a 1-based line and column.
func offsetPosition(data []byte, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	prefix := data[:offset]
	line := bytes.Count(prefix, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}
