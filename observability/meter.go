package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/dbscope/logger"
)

// Metric names.
const (
	MetricDatabasesCreated  = "dbscope.databases.created"
	MetricDatabasesDropped  = "dbscope.databases.dropped"
	MetricRollbacks         = "dbscope.rollbacks"
	MetricFixturesLoaded    = "dbscope.fixtures.loaded"
	MetricMigrationsApplied = "dbscope.migrations.applied"
)

// InitMeter installs an OTLP/HTTP meter provider as the global provider.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"interval", cfg.MetricInterval.String(),
	))

	return mp, nil
}

// Meter returns the dbscope meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics holds the instruments recorded by scope lifecycles.
type Metrics struct {
	databasesCreated  metric.Int64Counter
	databasesDropped  metric.Int64Counter
	rollbacks         metric.Int64Counter
	fixturesLoaded    metric.Int64Counter
	migrationsApplied metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	databasesCreated, err := meter.Int64Counter(MetricDatabasesCreated,
		metric.WithDescription("Temporary databases created"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDatabasesCreated, err)
	}

	databasesDropped, err := meter.Int64Counter(MetricDatabasesDropped,
		metric.WithDescription("Temporary databases dropped, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDatabasesDropped, err)
	}

	rollbacks, err := meter.Int64Counter(MetricRollbacks,
		metric.WithDescription("Transactionless rollbacks, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRollbacks, err)
	}

	fixturesLoaded, err := meter.Int64Counter(MetricFixturesLoaded,
		metric.WithDescription("Fixture records inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricFixturesLoaded, err)
	}

	migrationsApplied, err := meter.Int64Counter(MetricMigrationsApplied,
		metric.WithDescription("Migrations applied to temporary databases"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricMigrationsApplied, err)
	}

	return &Metrics{
		databasesCreated:  databasesCreated,
		databasesDropped:  databasesDropped,
		rollbacks:         rollbacks,
		fixturesLoaded:    fixturesLoaded,
		migrationsApplied: migrationsApplied,
	}, nil
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns instruments on the global meter. The global
// provider delegates, so instruments created before InitMeter still export
// once a provider is installed.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(Meter())
		if err != nil {
			logger.Get("observability").Warn("metrics disabled", logger.Fields(logger.FieldError, err.Error()))
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// DatabaseCreated counts a created temporary database.
func (m *Metrics) DatabaseCreated(ctx context.Context, driver string) {
	if m == nil {
		return
	}
	m.databasesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("driver", driver)))
}

// DatabaseDropped counts a drop attempt and whether it succeeded.
func (m *Metrics) DatabaseDropped(ctx context.Context, driver string, ok bool) {
	if m == nil {
		return
	}
	m.databasesDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("status", status(ok)),
	))
}

// Rollback counts a rollback and whether it was nested.
func (m *Metrics) Rollback(ctx context.Context, nested, ok bool) {
	if m == nil {
		return
	}
	m.rollbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("nested", nested),
		attribute.String("status", status(ok)),
	))
}

// FixturesLoaded counts inserted fixture records.
func (m *Metrics) FixturesLoaded(ctx context.Context, scope string, records int) {
	if m == nil || records == 0 {
		return
	}
	m.fixturesLoaded.Add(ctx, int64(records), metric.WithAttributes(attribute.String("scope", scope)))
}

// MigrationsApplied counts newly applied migrations.
func (m *Metrics) MigrationsApplied(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.migrationsApplied.Add(ctx, int64(n))
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
