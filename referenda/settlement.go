package referenda

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/types"
)

/*
settleDeposits refunds or slashes the pending deposits of closed referenda.
Every settlement carried out by the ledger is removed from the store right
away, the ones that fail stay pending and are retried by BeginBlock.
*/
func (e *Engine) settleDeposits(ctx context.Context, indexes []types.ReferendumIndex) error {
	var errs []error
	for _, index := range indexes {
		if err := e.settle(ctx, index); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) settle(ctx context.Context, index types.ReferendumIndex) error {
	r, err := e.store.Get(index)
	if err != nil {
		return fmt.Errorf("loading referendum %d for settlement: %w", index, err)
	}
	for len(r.Unsettled) > 0 {
		s := r.Unsettled[0]
		if err := e.applySettlement(s); err != nil {
			e.mSettleErrs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", s.Kind.String())))
			err = fmt.Errorf("%w: settling deposits of referendum %d: %w", ErrLedgerFailure, index, err)
			e.log.WarnContext(ctx, "deposit settlement failed, will retry", logger.Error(err), logger.Referendum(index), logger.Block(e.now))
			return err
		}
		if err := e.store.Update(func(tx *store.Tx) error {
			cur, err := tx.Get(index)
			if err != nil {
				return err
			}
			if len(cur.Unsettled) > 0 {
				cur.Unsettled = cur.Unsettled[1:]
			}
			if len(cur.Unsettled) == 0 {
				m, err := tx.Meta()
				if err != nil {
					return err
				}
				m.RemoveUnsettled(index)
				if err := tx.PutMeta(m); err != nil {
					return err
				}
			}
			r = cur
			return tx.Put(cur)
		}); err != nil {
			e.log.ErrorContext(ctx, fmt.Sprintf("%s of %d to %d done but not recorded", s.Kind, s.Deposit.Amount, s.Deposit.Who), logger.Error(err), logger.Referendum(index))
			return fmt.Errorf("recording settlement of referendum %d: %w", index, err)
		}
		e.log.DebugContext(ctx, fmt.Sprintf("%s of %d to %d", s.Kind, s.Deposit.Amount, s.Deposit.Who), logger.Referendum(index))
	}
	return nil
}

func (e *Engine) applySettlement(s store.Settlement) error {
	switch s.Kind {
	case store.SettleRefund:
		return e.ledger.Refund(s.Deposit.Who, s.Deposit.Amount)
	case store.SettleSlash:
		return e.ledger.Slash(s.Deposit.Who, s.Deposit.Amount)
	default:
		return fmt.Errorf("unknown settlement kind %d", s.Kind)
	}
}
