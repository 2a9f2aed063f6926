/*
Package scheduler implements the block agenda of the referendum engine:
wake-ups of referenda and enactments of approved proposals, keyed by the
block they are due at.

Agenda is not persisted, on startup the engine re-registers its alarms
and pending enactments (see referenda.Engine.Restore).
*/
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/types"
)

type (
	Observability interface {
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Logger() *slog.Logger
	}

	// WakeFunc is called for every wake-up which is due.
	WakeFunc func(ctx context.Context, index types.ReferendumIndex) error

	Wake struct {
		Index types.ReferendumIndex `json:"index"`
		At    types.BlockNumber     `json:"at"`
	}

	Enactment struct {
		Index    types.ReferendumIndex `json:"index"`
		At       types.BlockNumber     `json:"at"`
		Proposal types.Hash            `json:"proposal"`
	}

	Agenda struct {
		lock       sync.Mutex
		wakes      map[types.ReferendumIndex]types.BlockNumber
		enactments map[types.ReferendumIndex]Enactment
		// last block passed to OnInitialize
		block types.BlockNumber

		log    *slog.Logger
		mFired metric.Int64Counter
	}
)

func New(observe Observability) (*Agenda, error) {
	a := &Agenda{
		wakes:      make(map[types.ReferendumIndex]types.BlockNumber),
		enactments: make(map[types.ReferendumIndex]Enactment),
		log:        observe.Logger(),
	}
	if err := a.initMetrics(observe.Meter("scheduler")); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	return a, nil
}

func (a *Agenda) initMetrics(m metric.Meter) (err error) {
	a.mFired, err = m.Int64Counter("fired", metric.WithDescription("Number of agenda items delivered"))
	if err != nil {
		return fmt.Errorf("creating fired counter: %w", err)
	}
	pending, err := m.Int64ObservableGauge("pending", metric.WithDescription("Number of agenda items waiting to be delivered"))
	if err != nil {
		return fmt.Errorf("creating pending gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		a.lock.Lock()
		defer a.lock.Unlock()
		o.ObserveInt64(pending, int64(len(a.wakes)), metric.WithAttributes(attribute.String("kind", "wake")))
		o.ObserveInt64(pending, int64(len(a.enactments)), metric.WithAttributes(attribute.String("kind", "enactment")))
		return nil
	}, pending)
	return err
}

// ScheduleWake replaces the wake-up of the referendum.
func (a *Agenda) ScheduleWake(index types.ReferendumIndex, at types.BlockNumber) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.wakes[index] = at
	return nil
}

func (a *Agenda) CancelWake(index types.ReferendumIndex) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.wakes, index)
	return nil
}

func (a *Agenda) ScheduleEnactment(index types.ReferendumIndex, at types.BlockNumber, proposal types.Hash) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if e, ok := a.enactments[index]; ok && (e.At != at || e.Proposal != proposal) {
		return fmt.Errorf("enactment of referendum %d is already scheduled at block %d", index, e.At)
	}
	a.enactments[index] = Enactment{Index: index, At: at, Proposal: proposal}
	return nil
}

func (a *Agenda) CancelEnactment(index types.ReferendumIndex) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.enactments, index)
	return nil
}

// WakeAt returns the block of the referendum's wake-up.
func (a *Agenda) WakeAt(index types.ReferendumIndex) (types.BlockNumber, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	at, ok := a.wakes[index]
	return at, ok
}

// Wakes returns scheduled wake-ups in delivery order.
func (a *Agenda) Wakes() []Wake {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.dueWakes(types.BlockNumber(^uint64(0)))
}

// Enactments returns scheduled enactments in delivery order.
func (a *Agenda) Enactments() []Enactment {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.dueEnactments(types.BlockNumber(^uint64(0)))
}

/*
OnInitialize delivers everything due at block n. Wake-ups are passed to
wake in (block, index) order, each is removed from the agenda before the
call so the handler may schedule the next one. Due enactments are removed
and returned, executing the proposal is up to the caller.

Failure of a wake handler doesn't stop the delivery of the rest, errors
are returned joined.
*/
func (a *Agenda) OnInitialize(ctx context.Context, n types.BlockNumber, wake WakeFunc) ([]Enactment, error) {
	a.lock.Lock()
	if n < a.block {
		a.lock.Unlock()
		return nil, fmt.Errorf("block %d is before the last initialized block %d", n, a.block)
	}
	a.block = n
	due := a.dueWakes(n)
	a.lock.Unlock()

	var errs []error
	for _, w := range due {
		a.lock.Lock()
		at, ok := a.wakes[w.Index]
		// a previous handler may have moved or cancelled the wake-up
		if !ok || at != w.At {
			a.lock.Unlock()
			continue
		}
		delete(a.wakes, w.Index)
		a.lock.Unlock()

		a.mFired.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "wake")))
		if err := wake(ctx, w.Index); err != nil {
			a.log.WarnContext(ctx, fmt.Sprintf("wake-up of referendum %d failed", w.Index), logger.Error(err), logger.Referendum(w.Index), logger.Block(n))
			errs = append(errs, fmt.Errorf("waking referendum %d: %w", w.Index, err))
		}
	}

	a.lock.Lock()
	enact := a.dueEnactments(n)
	for _, e := range enact {
		delete(a.enactments, e.Index)
	}
	a.lock.Unlock()
	for _, e := range enact {
		a.mFired.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "enactment")))
		a.log.InfoContext(ctx, fmt.Sprintf("enacting proposal %s of referendum %d", e.Proposal, e.Index), logger.Referendum(e.Index), logger.Block(n))
	}
	return enact, errors.Join(errs...)
}

func (a *Agenda) dueWakes(n types.BlockNumber) []Wake {
	var due []Wake
	for idx, at := range a.wakes {
		if at <= n {
			due = append(due, Wake{Index: idx, At: at})
		}
	}
	slices.SortFunc(due, func(x, y Wake) int {
		if c := cmp.Compare(x.At, y.At); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})
	return due
}

func (a *Agenda) dueEnactments(n types.BlockNumber) []Enactment {
	var due []Enactment
	for _, e := range a.enactments {
		if e.At <= n {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(x, y Enactment) int {
		if c := cmp.Compare(x.At, y.At); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})
	return due
}
