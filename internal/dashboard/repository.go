package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook/stockbook/internal/ledger"
)

// Repository reads document dates across bills, delivery notes and
// production runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DocumentDates implements DocumentSource.
func (r *Repository) DocumentDates(ctx context.Context, since string) ([]ledger.DocDate, error) {
	rows, err := r.pool.Query(ctx, `
SELECT 'BILL', date::text FROM bills WHERE date >= $1::date
UNION ALL
SELECT 'DN', date::text FROM delivery_notes WHERE date >= $1::date
UNION ALL
SELECT 'PRODUCTION', date::text FROM productions WHERE date >= $1::date`, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.DocDate, error) {
		var d ledger.DocDate
		err := row.Scan(&d.Kind, &d.Date)
		return d, err
	})
}
