// Observer pattern interfaces for module lifecycle notifications.
// Events use the CloudEvents specification so audit or analytics sinks can
// forward them unchanged.

package modhooks

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of module lifecycle events.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for registration tracking.
	ObserverID() string
}

// Subject maintains observers and notifies them of events.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes the observer
	// receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unknown observers are ignored.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every interested observer.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Module lifecycle event types, in reverse domain notation.
const (
	EventTypeModuleDiscovered  = "com.modhooks.module.discovered"
	EventTypeModuleInstalled   = "com.modhooks.module.installed"
	EventTypeModuleEnabled     = "com.modhooks.module.enabled"
	EventTypeModuleDisabled    = "com.modhooks.module.disabled"
	EventTypeModuleUninstalled = "com.modhooks.module.uninstalled"
	EventTypeModuleFailed      = "com.modhooks.module.failed"
	EventTypeRegistryRescanned = "com.modhooks.registry.rescanned"
	EventTypeHealthChanged     = "com.modhooks.health.changed"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
