package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineQuery = `SELECT id, at, actor, action, entity, entity_id, details
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR at >= $1)
  AND ($2::timestamptz IS NULL OR at < $2)
  AND ($3::text IS NULL OR actor = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY at DESC, id DESC`

// TimelineWindow returns one window of rows.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg QueryParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery+` OFFSET $6 LIMIT $7`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRow)
}

// TimelineAll returns every matching row.
func (r *PGRepository) TimelineAll(ctx context.Context, arg QueryParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRow)
}

func scanRow(row pgx.CollectableRow) (TimelineRow, error) {
	var t TimelineRow
	var details []byte
	if err := row.Scan(&t.ID, &t.At, &t.Actor, &t.Action, &t.Entity, &t.EntityID, &details); err != nil {
		return TimelineRow{}, err
	}
	t.Details = details
	return t, nil
}
