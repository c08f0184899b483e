package procurement

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

// ErrBillNotFound indicates an unknown bill id.
var ErrBillNotFound = fmt.Errorf("%w: bill", shared.ErrNotFound)

// Repository persists bills in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service. It embeds
// the inventory operations so movements share the bill's transaction.
type TxRepository interface {
	inventory.TxRepository
	SupplierExists(ctx context.Context, id string) (bool, error)
	InsertBill(ctx context.Context, bill Bill) error
	InsertBillLines(ctx context.Context, billID string, lines []inventory.DocLine) error
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) SupplierExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO bills (id, number, supplier_id, date, remark, created_at, created_by) VALUES ($1, $2, $3, $4::date, $5, $6, $7)`,
		bill.ID, bill.Number, bill.SupplierID, bill.Date, bill.Remark, bill.CreatedAt, bill.CreatedBy)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: bill number %s already exists", shared.ErrConflict, bill.Number)
	}
	return err
}

func (r *txRepository) InsertBillLines(ctx context.Context, billID string, lines []inventory.DocLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO bill_lines (bill_id, line_no, item_id, qty, remark) VALUES ($1, $2, $3, $4, $5)`,
			billID, line.LineNo, line.ItemID, line.Qty, line.Remark)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

const billColumns = `id, number, supplier_id, date::text, remark, created_at, created_by`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.Number, &b.SupplierID, &b.Date, &b.Remark, &b.CreatedAt, &b.CreatedBy)
	return b, err
}

// GetBill loads a bill and its lines.
func (r *Repository) GetBill(ctx context.Context, id string) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	if err != nil {
		return Bill{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT line_no, item_id, qty, remark FROM bill_lines WHERE bill_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Bill{}, err
	}
	defer rows.Close()
	bill.Lines = []inventory.DocLine{}
	for rows.Next() {
		var line inventory.DocLine
		if err := rows.Scan(&line.LineNo, &line.ItemID, &line.Qty, &line.Remark); err != nil {
			return Bill{}, err
		}
		bill.Lines = append(bill.Lines, line)
	}
	return bill, rows.Err()
}

// ListBills lists bill headers newest first.
func (r *Repository) ListBills(ctx context.Context, filter BillFilter) ([]Bill, error) {
	var (
		where []string
		args  []any
	)
	if filter.SupplierID != "" {
		args = append(args, filter.SupplierID)
		where = append(where, fmt.Sprintf("supplier_id=$%d", len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	sql := `SELECT ` + billColumns + ` FROM bills`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql += fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bills := []Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}
