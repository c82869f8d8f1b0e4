package modhooks

import (
	"errors"
	"fmt"
)

// Runtime errors
var (
	// Discovery errors
	ErrMissingManifest     = errors.New("module manifest not found")
	ErrMalformedManifest   = errors.New("module manifest is malformed")
	ErrInvalidManifest     = errors.New("module manifest failed validation")
	ErrDuplicateIdentifier = errors.New("module identifier already declared by another module")

	// Lifecycle errors
	ErrNotFound           = errors.New("module not found")
	ErrInvalidTransition  = errors.New("invalid module state transition")
	ErrUnmetDependency    = errors.New("module dependency is not enabled")
	ErrHasDependents      = errors.New("module is required by an enabled module")
	ErrCircularDependency = errors.New("circular module dependency detected")
	ErrNoFactory          = errors.New("no plugin factory registered for module")
	ErrIdentifierMismatch = errors.New("plugin identifier does not match module identifier")

	// Dispatch errors
	ErrHandlerPanic    = errors.New("hook handler panicked")
	ErrPayloadMismatch = errors.New("hook payload type mismatch")
	ErrUndeclaredHook  = errors.New("hook has no declared payload schema")
	ErrNilHandler      = errors.New("hook handler is nil")
	ErrEmptyHookName   = errors.New("hook name is empty")

	// Event errors
	ErrInvalidEvent = errors.New("invalid runtime event")
)

// HandlerError describes a failure raised by a single hook handler.
type HandlerError struct {
	Hook    string
	Owner   string
	Handler uint64
	Err     error
}

func (e *HandlerError) Error() string {
	owner := e.Owner
	if owner == "" {
		owner = "<func>"
	}
	return fmt.Sprintf("hook %q handler #%d (%s): %v", e.Hook, e.Handler, owner, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
