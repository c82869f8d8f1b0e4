package feeders

import (
	"errors"
	"fmt"
)

// Static error definitions for feeders to comply with linting rules
var (
	ErrUnsupportedFormat       = errors.New("unsupported config file format")
	ErrInvalidTarget           = errors.New("feed target must be a non-nil pointer")
	ErrDotEnvInvalidLineFormat = errors.New("invalid .env line format")
)

func wrapTargetError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidTarget, got)
}
