package delivery

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

// ErrNoteNotFound indicates an unknown delivery note.
var ErrNoteNotFound = fmt.Errorf("%w: delivery note", shared.ErrNotFound)

// Repository persists delivery notes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a delivery repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional view used while issuing a note.
type TxRepository interface {
	inventory.TxRepository
	InsertNote(ctx context.Context, note Note) error
	InsertNoteLines(ctx context.Context, noteID string, lines []inventory.DocLine) error
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("delivery repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) InsertNote(ctx context.Context, note Note) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO delivery_notes (id, number, customer, address, date, remark, created_at, created_by)
VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8)`,
		note.ID, note.Number, note.Customer, note.Address, note.Date, note.Remark, note.CreatedAt, note.CreatedBy)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: delivery note number %s already exists", shared.ErrConflict, note.Number)
	}
	return err
}

func (r *txRepository) InsertNoteLines(ctx context.Context, noteID string, lines []inventory.DocLine) error {
	rows := make([][]any, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, []any{noteID, line.LineNo, line.ItemID, line.Qty, line.Remark})
	}
	_, err := r.tx.CopyFrom(ctx, pgx.Identifier{"delivery_note_lines"},
		[]string{"note_id", "line_no", "item_id", "qty", "remark"}, pgx.CopyFromRows(rows))
	return err
}

const noteColumns = `id, number, customer, address, date::text, remark, created_at, created_by`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Number, &n.Customer, &n.Address, &n.Date, &n.Remark, &n.CreatedAt, &n.CreatedBy)
	return n, err
}

// GetNote loads a note with its lines.
func (r *Repository) GetNote(ctx context.Context, id string) (Note, error) {
	note, err := scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM delivery_notes WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT line_no, item_id, qty, remark FROM delivery_note_lines WHERE note_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Note{}, err
	}
	note.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.DocLine, error) {
		var line inventory.DocLine
		err := row.Scan(&line.LineNo, &line.ItemID, &line.Qty, &line.Remark)
		return line, err
	})
	return note, err
}

// ListNotes lists note headers newest first.
func (r *Repository) ListNotes(ctx context.Context, filter NoteFilter) ([]Note, error) {
	var (
		where []string
		args  []any
	)
	if filter.Customer != "" {
		args = append(args, "%"+filter.Customer+"%")
		where = append(where, fmt.Sprintf("customer ILIKE $%d", len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	sql := `SELECT ` + noteColumns + ` FROM delivery_notes`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql += fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Note, error) {
		return scanNote(row)
	})
}
