package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// Poster writes movements and keeps stock_balances in step. It must run
// inside a transaction: every balance row is locked before it is checked.
type Poster struct {
	AllowNegative bool
	Clock         shared.Clock
	NewID         func() string
}

func (p Poster) now() shared.Clock {
	if p.Clock == nil {
		return shared.SystemClock{}
	}
	return p.Clock
}

// Post validates and appends the inputs in order. An OUT that would take the
// locked balance below zero fails with ErrInsufficientStock unless negative
// stock is allowed; the caller's transaction then rolls everything back.
func (p Poster) Post(ctx context.Context, tx TxRepository, actor string, inputs []MovementInput) ([]ledger.Movement, error) {
	if len(inputs) == 0 {
		return nil, shared.FieldError("lines", "at least one line is required")
	}
	newID := p.NewID
	if newID == nil {
		newID = shared.NewID
	}
	now := p.now().Now()
	today := now.Format(ledger.DateLayout)

	movements := make([]ledger.Movement, 0, len(inputs))
	for i, in := range inputs {
		date := in.Date
		if date == "" {
			date = today
		}
		m := ledger.Movement{
			ID:        newID(),
			Item:      in.Item,
			Direction: in.Direction,
			Qty:       in.Qty,
			Date:      date,
			Remark:    in.Remark,
			Ref:       in.Ref,
			CreatedAt: now,
			CreatedBy: actor,
		}
		if err := m.Validate(); err != nil {
			return nil, shared.FieldError(fmt.Sprintf("lines[%d]", i), err.Error())
		}

		item, err := tx.GetItem(ctx, in.Item.ItemID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.FieldError(fmt.Sprintf("lines[%d].item_id", i), "unknown item")
			}
			return nil, err
		}
		if item.Kind != in.Item.Kind {
			return nil, shared.FieldError(fmt.Sprintf("lines[%d].item_id", i), fmt.Sprintf("%s is %s, expected %s", item.Code, item.Kind, in.Item.Kind))
		}

		balance, err := tx.GetBalanceForUpdate(ctx, in.Item)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return nil, err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{Item: in.Item}
		}
		if in.Direction == ledger.Out && !p.AllowNegative && balance.Qty < in.Qty {
			return nil, fmt.Errorf("%w: %s has %d on hand, %d requested", ErrInsufficientStock, item.Code, balance.Qty, in.Qty)
		}

		if err := tx.InsertMovement(ctx, m); err != nil {
			return nil, err
		}
		balance.Qty += m.Signed()
		balance.UpdatedAt = now
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}
