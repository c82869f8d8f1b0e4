package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhooks"
)

// ActiveSource lists the plugins currently attached to the hook registry.
// It is implemented by *lifecycle.Service.
type ActiveSource interface {
	ActiveIDs() []string
	Active(id string) (modhooks.Plugin, bool)
}

// ChangedEvent is the data of a com.modhooks.health.changed event.
type ChangedEvent struct {
	Previous  Status `json:"previous"`
	Current   Status `json:"current"`
	Readiness Status `json:"readiness"`
}

// Aggregator collects reports from every active module concurrently. Results
// are cached for a short TTL so probes do not hammer the plugins.
type Aggregator struct {
	source   ActiveSource
	timeout  time.Duration
	cacheTTL time.Duration
	optional map[string]bool
	subject  modhooks.Subject
	logger   modhooks.Logger

	mu       sync.Mutex
	last     *Aggregated
	lastAt   time.Time
	previous Status
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout bounds each module's check. Default 200ms.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithCacheTTL sets how long a collection is reused. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(a *Aggregator) {
		a.cacheTTL = d
	}
}

// WithOptional marks modules whose health does not affect readiness.
func WithOptional(ids ...string) Option {
	return func(a *Aggregator) {
		for _, id := range ids {
			a.optional[id] = true
		}
	}
}

// WithSubject publishes a health changed event whenever overall health
// changes between collections.
func WithSubject(subject modhooks.Subject) Option {
	return func(a *Aggregator) {
		a.subject = subject
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(logger modhooks.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an aggregator over the active modules of source.
func NewAggregator(source ActiveSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:   source,
		timeout:  200 * time.Millisecond,
		cacheTTL: 250 * time.Millisecond,
		optional: make(map[string]bool),
		logger:   modhooks.NopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collect returns the aggregated health of every active module. With no
// active modules the runtime is healthy.
func (a *Aggregator) Collect(ctx context.Context) Aggregated {
	a.mu.Lock()
	if a.last != nil && a.cacheTTL > 0 && time.Since(a.lastAt) < a.cacheTTL {
		cached := *a.last
		a.mu.Unlock()
		return cached
	}
	a.mu.Unlock()

	reports := a.collect(ctx)
	result := Aggregated{
		Readiness:   StatusHealthy,
		Health:      StatusHealthy,
		Reports:     reports,
		GeneratedAt: time.Now(),
	}
	for _, r := range reports {
		result.Health = worst(result.Health, r.Status)
		if !r.Optional {
			result.Readiness = worst(result.Readiness, r.Status)
		}
	}

	a.mu.Lock()
	previous := a.previous
	a.previous = result.Health
	a.last = &result
	a.lastAt = time.Now()
	a.mu.Unlock()

	if previous != StatusUnknown && previous != result.Health {
		a.logger.Warn("Health changed", "from", previous, "to", result.Health)
		a.publish(ctx, ChangedEvent{Previous: previous, Current: result.Health, Readiness: result.Readiness})
	}
	return result
}

// Invalidate drops the cached collection.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.last = nil
	a.mu.Unlock()
}

func (a *Aggregator) collect(ctx context.Context) []Report {
	ids := a.source.ActiveIDs()
	results := make([][]Report, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		plugin, ok := a.source.Active(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.check(ctx, id, plugin)
		}()
	}
	wg.Wait()

	var reports []Report
	for _, r := range results {
		reports = append(reports, r...)
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Module < reports[j].Module })
	return reports
}

func (a *Aggregator) check(ctx context.Context, id string, plugin modhooks.Plugin) []Report {
	optional := a.optional[id]
	failed := func(status Status, msg string) []Report {
		return []Report{{Module: id, Status: status, Message: msg, CheckedAt: time.Now(), Optional: optional}}
	}

	provider, ok := plugin.(Provider)
	if !ok {
		return []Report{{Module: id, Status: StatusHealthy, Message: "active", CheckedAt: time.Now(), Optional: optional}}
	}

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		reports []Report
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errCheckPanicked, r)}
			}
		}()
		reports, err := provider.HealthCheck(checkCtx)
		done <- outcome{reports: reports, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-checkCtx.Done():
		res = outcome{err: checkCtx.Err()}
	}

	if res.err != nil {
		if errors.Is(res.err, errCheckPanicked) {
			return failed(StatusUnhealthy, res.err.Error())
		}
		return failed(classify(res.err), fmt.Sprintf("health check failed: %v", res.err))
	}
	reports := res.reports
	if len(reports) == 0 {
		return failed(StatusUnknown, "health check returned no reports")
	}
	for i := range reports {
		reports[i].Module = id
		reports[i].Optional = optional
		if reports[i].CheckedAt.IsZero() {
			reports[i].CheckedAt = time.Now()
		}
	}
	return reports
}

var errCheckPanicked = errors.New("health check panicked")

// classify maps a check error to a status. Timeouts and cancellation are
// unhealthy even though context.DeadlineExceeded reports itself temporary.
func classify(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusUnhealthy
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return StatusDegraded
	}
	return StatusUnhealthy
}

func (a *Aggregator) publish(ctx context.Context, data ChangedEvent) {
	if a.subject == nil {
		return
	}
	event := modhooks.NewCloudEvent(modhooks.EventTypeHealthChanged, modhooks.SourceHealth, data, nil)
	if err := a.subject.NotifyObservers(ctx, event); err != nil {
		a.logger.Error("Failed to notify observers", "event", modhooks.EventTypeHealthChanged, "error", err)
	}
}
