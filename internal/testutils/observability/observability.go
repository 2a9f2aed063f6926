package observability

import (
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tnop "go.opentelemetry.io/otel/trace/noop"

	testlogr "github.com/gaecom/substrate/internal/testutils/logger"
)

/*
NOPObservability creates observability implementation where everything is no-op.
Use it for tests for which it absolutely doesn't make sense to create any logs or metrics.
*/
func NOPObservability() *Observability {
	return &Observability{
		mp:  noop.NewMeterProvider(),
		tp:  tnop.NewTracerProvider(),
		log: testlogr.NOP(),
	}
}

// Default creates observability which logs into the test log and discards
// metrics and traces.
func Default(t testing.TB) *Observability {
	return &Observability{
		mp:  noop.NewMeterProvider(),
		tp:  tnop.NewTracerProvider(),
		log: testlogr.New(t),
	}
}

// WithMeterProvider returns copy of o using mp for metrics.
func (o *Observability) WithMeterProvider(mp metric.MeterProvider) *Observability {
	c := *o
	c.mp = mp
	return &c
}

type Observability struct {
	mp  metric.MeterProvider
	tp  trace.TracerProvider
	log *slog.Logger
}

func (o *Observability) Logger() *slog.Logger { return o.log }

func (o *Observability) Meter(name string, options ...metric.MeterOption) metric.Meter {
	return o.mp.Meter(name, options...)
}

func (o *Observability) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return o.tp.Tracer(name, options...)
}

func (o *Observability) TracerProvider() trace.TracerProvider { return o.tp }
