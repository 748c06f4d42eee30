// Package prometheus implements observability.Metrics on top of
// github.com/prometheus/client_golang, as an alternative to the otel
// provider for deployments that scrape Prometheus directly rather than
// exporting over OTLP.
package prometheus

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reqengine/reqengine/pkg/observability"
)

// Provider implements observability.Metrics by registering instruments
// against a prometheus.Registerer. It does not implement Tracer or Logger;
// callers typically compose it with the otel provider's tracer/logger via
// their own facade, or use it standalone where only metrics are needed.
type Provider struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	updowns    map[string]*prometheus.GaugeVec
}

// NewProvider builds a Provider registering its instruments against reg.
// Pass prometheus.DefaultRegisterer to use the global default registry.
func NewProvider(reg prometheus.Registerer) *Provider {
	return &Provider{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		updowns:    make(map[string]*prometheus.GaugeVec),
	}
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// Counter returns a counter instrument, creating and registering it on
// first use. Field keys used across calls to Add/Increment become the
// metric's label set; the first call to Counter for a given name fixes
// that label set for its lifetime, matching Prometheus's static-label-set
// requirement.
func (p *Provider) Counter(name, description, unit string) observability.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitize(name)
	vec, ok := p.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: key,
			Help: description,
		}, nil)
		p.registerer.MustRegister(vec)
		p.counters[key] = vec
	}
	return &counter{vec: vec}
}

// Histogram returns a histogram instrument, creating and registering it on
// first use with Prometheus's default bucket boundaries.
func (p *Provider) Histogram(name, description, unit string) observability.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitize(name)
	vec, ok := p.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    key,
			Help:    description,
			Buckets: prometheus.DefBuckets,
		}, nil)
		p.registerer.MustRegister(vec)
		p.histograms[key] = vec
	}
	return &histogram{vec: vec}
}

// UpDownCounter returns a gauge-backed up-down counter, since Prometheus
// has no native up-down-counter instrument.
func (p *Provider) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitize(name)
	vec, ok := p.updowns[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: key,
			Help: description,
		}, nil)
		p.registerer.MustRegister(vec)
		p.updowns[key] = vec
	}
	return &upDownCounter{vec: vec}
}

// Gauge registers an asynchronous gauge backed by a prometheus.GaugeFunc,
// invoking callback with a background context on every scrape.
func (p *Provider) Gauge(name, description, unit string, callback observability.GaugeCallback) error {
	gaugeFn := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: sanitize(name),
		Help: description,
	}, func() float64 {
		return callback(context.Background())
	})
	return p.registerer.Register(gaugeFn)
}

type counter struct {
	vec *prometheus.CounterVec
}

func (c *counter) Add(_ context.Context, value int64, _ ...observability.Field) {
	c.vec.WithLabelValues().Add(float64(value))
}

func (c *counter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type histogram struct {
	vec *prometheus.HistogramVec
}

func (h *histogram) Record(_ context.Context, value float64, _ ...observability.Field) {
	h.vec.WithLabelValues().Observe(value)
}

type upDownCounter struct {
	vec *prometheus.GaugeVec
}

func (u *upDownCounter) Add(_ context.Context, value int64, _ ...observability.Field) {
	u.vec.WithLabelValues().Add(float64(value))
}
