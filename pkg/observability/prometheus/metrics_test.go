package prometheus_test

import (
	"context"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reqengine/reqengine/pkg/observability"
	"github.com/reqengine/reqengine/pkg/observability/prometheus"
)

func TestProviderCounter(t *testing.T) {
	reg := prom.NewRegistry()
	provider := prometheus.NewProvider(reg)
	ctx := context.Background()

	counter := provider.Counter("reqengine.attempts", "attempts", "1")
	counter.Increment(ctx)
	counter.Add(ctx, 2)

	count, err := testutil.GatherAndCount(reg, "reqengine_attempts")
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one registered series for reqengine_attempts, got %d", count)
	}
}

func TestProviderHistogramRecordsWithoutPanic(t *testing.T) {
	reg := prom.NewRegistry()
	provider := prometheus.NewProvider(reg)
	ctx := context.Background()

	hist := provider.Histogram("reqengine.duration", "duration", "ms")
	hist.Record(ctx, 12.5)
	hist.Record(ctx, 48.0, observability.Int("http.status_code", 200))
}

func TestProviderUpDownCounterTracksNetValue(t *testing.T) {
	reg := prom.NewRegistry()
	provider := prometheus.NewProvider(reg)
	ctx := context.Background()

	updown := provider.UpDownCounter("reqengine.in_flight", "in flight", "1")
	updown.Add(ctx, 3)
	updown.Add(ctx, -1)
}

func TestProviderGaugeInvokesCallbackOnScrape(t *testing.T) {
	reg := prom.NewRegistry()
	provider := prometheus.NewProvider(reg)

	called := false
	err := provider.Gauge("reqengine.pool_size", "pool size", "1", func(ctx context.Context) float64 {
		called = true
		return 7
	})
	if err != nil {
		t.Fatalf("unexpected error registering gauge: %v", err)
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if !called {
		t.Fatalf("expected gauge callback to be invoked on scrape")
	}
}

func TestProviderCounterIsIdempotentPerName(t *testing.T) {
	reg := prom.NewRegistry()
	provider := prometheus.NewProvider(reg)

	first := provider.Counter("reqengine.retries", "retries", "1")
	second := provider.Counter("reqengine.retries", "retries", "1")

	first.Increment(context.Background())
	second.Increment(context.Background())
}
