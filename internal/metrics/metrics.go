package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	ListingsCreated   metric.Int64Counter
	ListingsRemoved   metric.Int64Counter
	ListingsSold      metric.Int64Counter
	SaleVolume        metric.Int64Counter
	FeesAccrued       metric.Int64Counter
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"nbx_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"nbx_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ListingsCreated, err = meter.Int64Counter(
		"nbx_listings_created_total",
		metric.WithDescription("Total number of listings created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ListingsRemoved, err = meter.Int64Counter(
		"nbx_listings_removed_total",
		metric.WithDescription("Total number of listings removed by their seller"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ListingsSold, err = meter.Int64Counter(
		"nbx_listings_sold_total",
		metric.WithDescription("Total number of completed sales"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SaleVolume, err = meter.Int64Counter(
		"nbx_sale_volume_base_units",
		metric.WithDescription("Cumulative sale volume in payment token base units"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FeesAccrued, err = meter.Int64Counter(
		"nbx_fees_accrued_base_units",
		metric.WithDescription("Cumulative protocol fees accrued in payment token base units"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"nbx_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"nbx_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"nbx_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordListingCreated(ctx context.Context) {
	m.ListingsCreated.Add(ctx, 1)
}

func (m *Metrics) RecordListingRemoved(ctx context.Context) {
	m.ListingsRemoved.Add(ctx, 1)
}

func (m *Metrics) RecordSale(ctx context.Context, price, fee uint64) {
	m.ListingsSold.Add(ctx, 1)
	m.SaleVolume.Add(ctx, int64(price))
	m.FeesAccrued.Add(ctx, int64(fee))
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}
