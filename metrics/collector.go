// Package metrics exports hook dispatch counters and module states to
// Prometheus.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "modhooks"

// HookStatsSource is implemented by *modhooks.HookRegistry.
type HookStatsSource interface {
	Stats() []modhooks.HookStats
}

// ModuleLister is implemented by *lifecycle.Service.
type ModuleLister interface {
	ListModules(ctx context.Context) ([]lifecycle.ModuleStatus, error)
}

// Collector implements prometheus.Collector. It pulls a snapshot on every
// scrape, so dispatch is not instrumented beyond the registry's own atomic
// counters.
type Collector struct {
	hooks   HookStatsSource
	modules ModuleLister
	logger  modhooks.Logger
	timeout time.Duration

	handlersDesc   *prometheus.Desc
	dispatchesDesc *prometheus.Desc
	failuresDesc   *prometheus.Desc
	modulesDesc    *prometheus.Desc
	activeDesc     *prometheus.Desc
}

// NewCollector creates a collector. modules may be nil to export hook
// metrics only. namespace defaults to DefaultNamespace.
func NewCollector(hooks HookStatsSource, modules ModuleLister, namespace string, logger modhooks.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = modhooks.NopLogger{}
	}
	return &Collector{
		hooks:   hooks,
		modules: modules,
		logger:  logger,
		timeout: 5 * time.Second,
		handlersDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_hook_handlers", namespace),
			"Handlers currently registered per hook",
			[]string{"hook"}, nil,
		),
		dispatchesDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_hook_dispatches_total", namespace),
			"Filter and action dispatches per hook (cumulative)",
			[]string{"hook"}, nil,
		),
		failuresDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_hook_failures_total", namespace),
			"Handler errors and panics per hook (cumulative)",
			[]string{"hook"}, nil,
		),
		modulesDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_modules", namespace),
			"Known modules per lifecycle state",
			[]string{"state"}, nil,
		),
		activeDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_module_active", namespace),
			"1 when the module's plugin is attached to the hook registry",
			[]string{"module"}, nil,
		),
	}
}

// Describe sends metric descriptors.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handlersDesc
	ch <- c.dispatchesDesc
	ch <- c.failuresDesc
	if c.modules != nil {
		ch <- c.modulesDesc
		ch <- c.activeDesc
	}
}

// Collect gathers current stats and emits ConstMetrics.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.hooks.Stats() {
		ch <- prometheus.MustNewConstMetric(c.handlersDesc, prometheus.GaugeValue, float64(s.Handlers), s.Name)
		ch <- prometheus.MustNewConstMetric(c.dispatchesDesc, prometheus.CounterValue, float64(s.Dispatches), s.Name)
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(s.Failures), s.Name)
	}
	if c.modules == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	modules, err := c.modules.ListModules(ctx)
	if err != nil {
		c.logger.Error("Failed to list modules for metrics", "error", err)
		return
	}
	counts := map[modhooks.State]int{
		modhooks.StateDiscovered: 0,
		modhooks.StateInstalled:  0,
		modhooks.StateEnabled:    0,
		modhooks.StateDisabled:   0,
	}
	for _, m := range modules {
		counts[m.State]++
		active := 0.0
		if m.Active {
			active = 1
		}
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, active, m.ID)
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.modulesDesc, prometheus.GaugeValue, float64(n), string(state))
	}
}
