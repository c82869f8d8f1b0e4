package modhooks

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is the envelope every runtime event travels in.
type CloudEvent = cloudevents.Event

// Event sources, one per emitting subsystem.
const (
	SourceLifecycle = "/modhooks/lifecycle"
	SourceRegistry  = "/modhooks/registry"
	SourceHealth    = "/modhooks/health"
)

// Extension attributes set on module events so routers can filter without
// decoding the payload.
const (
	ExtensionModule = "modhooksmodule"
	ExtensionState  = "modhooksstate"
)

const moduleEventPrefix = "com.modhooks.module."

// ModuleEventData is the payload of module lifecycle events.
type ModuleEventData struct {
	Module  string `json:"module"`
	From    State  `json:"from,omitempty"`
	To      State  `json:"to,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewModuleEvent wraps a module transition. The subject is the module
// identifier and the target state, when known, is carried as an extension.
func NewModuleEvent(eventType, source string, data ModuleEventData) CloudEvent {
	ext := map[string]any{ExtensionModule: data.Module}
	if data.To != "" {
		ext[ExtensionState] = string(data.To)
	}
	event := NewCloudEvent(eventType, source, data, ext)
	event.SetSubject(data.Module)
	return event
}

// NewCloudEvent builds a JSON event with a time-ordered ID. Extension names
// are lowercased and stripped to the characters CloudEvents allows.
func NewCloudEvent(eventType, source string, data any, extensions map[string]any) CloudEvent {
	event := cloudevents.NewEvent(cloudevents.VersionV1)
	event.SetID(eventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now().UTC())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for name, value := range extensions {
		event.SetExtension(extensionName(name), value)
	}
	return event
}

func extensionName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, name)
}

func eventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ValidateCloudEvent checks the envelope attributes. Module events must
// also name their module in the subject.
func ValidateCloudEvent(event CloudEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if strings.HasPrefix(event.Type(), moduleEventPrefix) && event.Subject() == "" {
		return fmt.Errorf("%w: %s has no module subject", ErrInvalidEvent, event.Type())
	}
	return nil
}
