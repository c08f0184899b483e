package production

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
)

// ErrRunNotFound indicates an unknown production run.
var ErrRunNotFound = fmt.Errorf("%w: production", shared.ErrNotFound)

// Repository persists production runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional view used while recording a run.
type TxRepository interface {
	inventory.TxRepository
	InsertRun(ctx context.Context, run Run) error
	InsertRunLines(ctx context.Context, runID string, lines []inventory.DocLine) error
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) InsertRun(ctx context.Context, run Run) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO productions (id, number, date, remark, created_at, created_by) VALUES ($1, $2, $3::date, $4, $5, $6)`,
		run.ID, run.Number, run.Date, run.Remark, run.CreatedAt, run.CreatedBy)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: production number %s already exists", shared.ErrConflict, run.Number)
	}
	return err
}

func (r *txRepository) InsertRunLines(ctx context.Context, runID string, lines []inventory.DocLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO production_lines (production_id, line_no, item_id, qty, remark) VALUES ($1, $2, $3, $4, $5)`,
			runID, line.LineNo, line.ItemID, line.Qty, line.Remark)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

const runColumns = `id, number, date::text, remark, created_at, created_by`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Number, &run.Date, &run.Remark, &run.CreatedAt, &run.CreatedBy)
	return run, err
}

// GetRun loads a run with its lines.
func (r *Repository) GetRun(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM productions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT line_no, item_id, qty, remark FROM production_lines WHERE production_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Run{}, err
	}
	run.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.DocLine, error) {
		var line inventory.DocLine
		err := row.Scan(&line.LineNo, &line.ItemID, &line.Qty, &line.Remark)
		return line, err
	})
	return run, err
}

// ListRuns lists runs newest first.
func (r *Repository) ListRuns(ctx context.Context, filter inventory.DocFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	sql := `SELECT ` + runColumns + ` FROM productions`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql += fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		return scanRun(row)
	})
}
