package referenda

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/observability"
)

func (e *Engine) initMetrics(m metric.Meter) (err error) {
	e.mTransitions, err = m.Int64Counter("transitions", metric.WithDescription("Number of referendum state transitions"))
	if err != nil {
		return fmt.Errorf("creating transitions counter: %w", err)
	}
	e.mSettleErrs, err = m.Int64Counter("settlement.failures", metric.WithDescription("Number of deposit settlements the ledger failed to carry out"))
	if err != nil {
		return fmt.Errorf("creating settlement failure counter: %w", err)
	}

	deciding, err := m.Int64ObservableGauge("deciding", metric.WithDescription("Number of deciding referenda per track"))
	if err != nil {
		return fmt.Errorf("creating deciding gauge: %w", err)
	}
	queued, err := m.Int64ObservableGauge("queued", metric.WithDescription("Number of referenda waiting for a deciding slot per track"))
	if err != nil {
		return fmt.Errorf("creating queued gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		e.statsLock.Lock()
		defer e.statsLock.Unlock()
		for id, st := range e.stats {
			attrs := metric.WithAttributes(observability.Track(id))
			o.ObserveInt64(deciding, st.deciding, attrs)
			o.ObserveInt64(queued, st.queued, attrs)
		}
		return nil
	}, deciding, queued)
	if err != nil {
		return fmt.Errorf("registering track gauge callback: %w", err)
	}
	return nil
}

// committed records the outcome of a successful pass.
func (e *Engine) committed(ctx context.Context, p *pass) {
	e.statsLock.Lock()
	for id, ts := range p.tracks {
		e.stats[id] = trackStats{deciding: int64(ts.Deciding), queued: int64(len(ts.Queue))}
	}
	e.statsLock.Unlock()

	for _, ev := range p.events {
		e.mTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", ev.name), observability.Track(ev.track)))
		lvl := slog.LevelDebug
		if ev.name != evConfirming && ev.name != evUnconfirmed {
			lvl = slog.LevelInfo
		}
		e.log.LogAttrs(ctx, lvl, fmt.Sprintf("referendum %d %s", ev.index, ev.name), logger.Referendum(ev.index), logger.Track(ev.track), logger.Block(p.now))
	}
}
