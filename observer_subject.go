package modhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventSubject is the default Subject. Observers are notified synchronously
// in registration order; a failing or panicking observer is logged and the
// rest still run.
type EventSubject struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	order     []string
	logger    Logger
}

// NewEventSubject creates an empty subject.
func NewEventSubject(logger Logger) *EventSubject {
	return &EventSubject{
		observers: make(map[string]*observerRegistration),
		logger:    loggerOrNop(logger),
	}
}

// RegisterObserver implements Subject.
func (s *EventSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	id := observer.ObserverID()
	if _, exists := s.observers[id]; !exists {
		s.order = append(s.order, id)
	}
	s.observers[id] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}
	s.logger.Debug("Observer registered", "observerID", id, "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver implements Subject.
func (s *EventSubject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := observer.ObserverID()
	if _, exists := s.observers[id]; !exists {
		return nil
	}
	delete(s.observers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Debug("Observer unregistered", "observerID", id)
	return nil
}

// NotifyObservers implements Subject.
func (s *EventSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	s.mu.RLock()
	targets := make([]*observerRegistration, 0, len(s.order))
	for _, id := range s.order {
		reg := s.observers[id]
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, reg)
	}
	s.mu.RUnlock()

	for _, reg := range targets {
		s.deliver(ctx, reg, event)
	}
	return nil
}

func (s *EventSubject) deliver(ctx context.Context, reg *observerRegistration, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked", "observerID", reg.observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := reg.observer.OnEvent(ctx, event); err != nil {
		s.logger.Error("Observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// GetObservers implements Subject.
func (s *EventSubject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(s.order))
	for _, id := range s.order {
		reg := s.observers[id]
		eventTypes := make([]string, 0, len(reg.eventTypes))
		for eventType := range reg.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		info = append(info, ObserverInfo{
			ID:           id,
			EventTypes:   eventTypes,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}
