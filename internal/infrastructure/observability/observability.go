// Package observability assembles the service's Observability from the OTel
// tracer, the zap logger and the Prometheus registry.
package observability

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// instruments resolves metric keys against the instruments registered by
// prometrics.Registry.Standard. A key nobody registered gets a no-op
// instrument and one warning.
type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
	log        observability.Logger
	warned     sync.Map // MetricKey -> struct{}
}

func (m *instruments) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	m.unknown(name, "counter")
	return observability.NopCounter()
}

func (m *instruments) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	m.unknown(name, "histogram")
	return observability.NopHistogram()
}

func (m *instruments) unknown(name observability.MetricKey, kind string) {
	if _, seen := m.warned.LoadOrStore(name, struct{}{}); seen {
		return
	}
	m.log.Warn("metric_not_registered",
		observability.F("metric", string(name)),
		observability.F("kind", kind),
	)
}

// New returns the Observability every use case, worker and handler shares.
// A nil registry disables metrics.
func New(tracer observability.Tracer, logger observability.Logger, registry *prometrics.Registry) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	var metrics observability.Metrics = observability.NopMetrics()
	if registry != nil {
		counters, histograms := registry.Standard()
		metrics = &instruments{
			counters:   counters,
			histograms: histograms,
			log:        logger.With(observability.F("component", "metrics")),
		}
	}
	return &provider{tracer: tracer, logger: logger, metrics: metrics}
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }
