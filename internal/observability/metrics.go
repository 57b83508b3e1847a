package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/platefeed/recsys/internal/observability"
	defaultServiceName = "platefeed-recsys"
	cardinalityLimit   = 2000
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for
// request and retrieval duration histograms.
var latencyHistogramBoundaries = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5}

// Metrics is the single metrics interface for the recommender service.
type Metrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRetrieval(ctx context.Context, kind string, candidates int, duration time.Duration)
	RecordCacheRebuild(ctx context.Context, dishCount int)
	RecordColdStartFallback(ctx context.Context)
	RecordProfileCache(ctx context.Context, hit bool)
	RecordJob(ctx context.Context, kind, outcome string)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for
// shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: platefeed-recsys).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and
// returns the provider, an HTTP handler for /metrics, and the Metrics
// bound to the provider's meter. Caller must call provider.Shutdown on
// exit.
func NewMeterProvider(_ context.Context, cfg MeterProviderConfig) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics Metrics, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "http.server.duration"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "retrieval_duration_seconds"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
		),
	)
	provider = mp
	meter := mp.Meter(meterScope)

	metrics, err = newMetricsFromMeter(meter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return provider, metricsHandler, metrics, nil
}

func newMetricsFromMeter(meter metric.Meter) (*metricsImpl, error) {
	requestCount, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("request_count: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.server.duration: %w", err)
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieval_duration_seconds",
		metric.WithDescription("Vector retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval_duration_seconds: %w", err)
	}

	retrievalCandidates, err := meter.Int64Counter(
		"retrieval_candidates_total",
		metric.WithDescription("Candidates returned by retrieval per query kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval_candidates_total: %w", err)
	}

	cacheRebuilds, err := meter.Int64Counter(
		"embedding_cache_rebuilds_total",
		metric.WithDescription("Completed embedding cache rebuilds"),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding_cache_rebuilds_total: %w", err)
	}

	cachedDishes, err := meter.Int64Gauge(
		"embedding_cache_dishes",
		metric.WithDescription("Dishes in the embedding cache after the last rebuild"),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding_cache_dishes: %w", err)
	}

	coldStartFallbacks, err := meter.Int64Counter(
		"cold_start_fallbacks_total",
		metric.WithDescription("Cold-start syntheses that fell back to the catalog mean"),
	)
	if err != nil {
		return nil, fmt.Errorf("cold_start_fallbacks_total: %w", err)
	}

	profileCache, err := meter.Int64Counter(
		"profile_cache_lookups_total",
		metric.WithDescription("User profile vector cache lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("profile_cache_lookups_total: %w", err)
	}

	jobsFinished, err := meter.Int64Counter(
		"jobs_finished_total",
		metric.WithDescription("Background jobs by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs_finished_total: %w", err)
	}

	return &metricsImpl{
		requestCount:        requestCount,
		requestDuration:     requestDuration,
		retrievalDuration:   retrievalDuration,
		retrievalCandidates: retrievalCandidates,
		cacheRebuilds:       cacheRebuilds,
		cachedDishes:        cachedDishes,
		coldStartFallbacks:  coldStartFallbacks,
		profileCache:        profileCache,
		jobsFinished:        jobsFinished,
	}, nil
}

type metricsImpl struct {
	requestCount        metric.Int64Counter
	requestDuration     metric.Float64Histogram
	retrievalDuration   metric.Float64Histogram
	retrievalCandidates metric.Int64Counter
	cacheRebuilds       metric.Int64Counter
	cachedDishes        metric.Int64Gauge
	coldStartFallbacks  metric.Int64Counter
	profileCache        metric.Int64Counter
	jobsFinished        metric.Int64Counter
}

func (m *metricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *metricsImpl) RecordRetrieval(ctx context.Context, kind string, candidates int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.retrievalDuration.Record(ctx, duration.Seconds(), attrs)
	m.retrievalCandidates.Add(ctx, int64(candidates), attrs)
}

func (m *metricsImpl) RecordCacheRebuild(ctx context.Context, dishCount int) {
	m.cacheRebuilds.Add(ctx, 1)
	m.cachedDishes.Record(ctx, int64(dishCount))
}

func (m *metricsImpl) RecordColdStartFallback(ctx context.Context) {
	m.coldStartFallbacks.Add(ctx, 1)
}

func (m *metricsImpl) RecordProfileCache(ctx context.Context, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}

	m.profileCache.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metricsImpl) RecordJob(ctx context.Context, kind, outcome string) {
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
