package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes OTLP-exported instruments for outbound gateway traffic and
// ledger writes.
type Metrics struct {
	gatewayRequests metric.Int64Counter
	gatewayLatency  metric.Float64Histogram
	ledgerWrites    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "donate-artist"
	}
	meter := provider.Meter(name)

	gatewayRequests, err := meter.Int64Counter("donate_gateway_requests_total")
	if err != nil {
		return nil, err
	}
	gatewayLatency, err := meter.Float64Histogram("donate_gateway_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	ledgerWrites, err := meter.Int64Counter("donate_ledger_writes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatewayRequests: gatewayRequests,
		gatewayLatency:  gatewayLatency,
		ledgerWrites:    ledgerWrites,
	}, nil
}

// RecordGatewayRequest counts one outbound gateway call and its latency.
func (m *Metrics) RecordGatewayRequest(ctx context.Context, provider, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.gatewayRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.gatewayLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordLedgerWrite counts ledger appends and counter increments.
func (m *Metrics) RecordLedgerWrite(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":    {},
	"operation":   {},
	"outcome":     {},
	"source_type": {},
	"method":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
