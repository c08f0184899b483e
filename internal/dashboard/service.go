// Package dashboard serves the read-only stock summary.
package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// LedgerSource lists items and the movement history.
type LedgerSource interface {
	ListItems(ctx context.Context, filter inventory.ItemFilter) ([]ledger.Item, error)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]ledger.Movement, error)
}

// DocumentSource lists issue dates of documents dated on or after since.
type DocumentSource interface {
	DocumentDates(ctx context.Context, since string) ([]ledger.DocDate, error)
}

// Service builds the dashboard on every call.
type Service struct {
	ledger   LedgerSource
	docs     DocumentSource
	clock    shared.Clock
	lowLimit int
	timeout  time.Duration
}

// NewService constructs the dashboard service. lowLimit <= 0 uses
// ledger.DefaultLowStockLimit.
func NewService(source LedgerSource, docs DocumentSource, clock shared.Clock, lowLimit int) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{ledger: source, docs: docs, clock: clock, lowLimit: lowLimit, timeout: 5 * time.Second}
}

// Build loads items, the full movement history and today's documents
// concurrently and derives the dashboard anchored to the current time.
func (s *Service) Build(ctx context.Context) (ledger.Dashboard, error) {
	now := s.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var in ledger.DashboardInput
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := s.ledger.ListItems(ctx, inventory.ItemFilter{})
		if err != nil {
			return err
		}
		in.Items = items
		return nil
	})

	g.Go(func() error {
		movements, err := s.ledger.ListMovements(ctx, inventory.MovementFilter{})
		if err != nil {
			return err
		}
		in.Movements = movements
		return nil
	})

	g.Go(func() error {
		docs, err := s.docs.DocumentDates(ctx, now.Format(ledger.DateLayout))
		if err != nil {
			return err
		}
		in.Documents = docs
		return nil
	})

	if err := g.Wait(); err != nil {
		return ledger.Dashboard{}, err
	}
	return ledger.BuildDashboard(in, now, s.lowLimit), nil
}
