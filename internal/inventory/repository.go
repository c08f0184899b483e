package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItem(ctx context.Context, id string) (ledger.Item, error)
	GetBalanceForUpdate(ctx context.Context, ref ledger.ItemRef) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m ledger.Movement) error
	ListItemMovements(ctx context.Context, ref ledger.ItemRef) ([]ledger.Movement, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction. Document repositories embed it
// so their flows post movements in the same transaction as the header.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const itemColumns = `id, kind, code, name, category, item_group, threshold, qty_per_fg, created_at, updated_at`

func scanItem(row pgx.Row) (ledger.Item, error) {
	var item ledger.Item
	err := row.Scan(&item.ID, &item.Kind, &item.Code, &item.Name, &item.Category, &item.Group, &item.Threshold, &item.QtyPerFG, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Item{}, ErrItemNotFound
	}
	return item, err
}

func getItem(ctx context.Context, q querier, id string) (ledger.Item, error) {
	return scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
}

// CreateItem inserts a new item.
func (r *Repository) CreateItem(ctx context.Context, item ledger.Item) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Kind, item.Code, item.Name, item.Category, item.Group, item.Threshold, item.QtyPerFG, item.CreatedAt, item.UpdatedAt)
	return mapUnique(err, "code")
}

// UpdateItem overwrites the mutable fields of an item.
func (r *Repository) UpdateItem(ctx context.Context, item ledger.Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET code=$2, name=$3, category=$4, item_group=$5, threshold=$6, qty_per_fg=$7, updated_at=$8 WHERE id=$1`,
		item.ID, item.Code, item.Name, item.Category, item.Group, item.Threshold, item.QtyPerFG, item.UpdatedAt)
	if err != nil {
		return mapUnique(err, "code")
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	return getItem(ctx, r.pool, id)
}

// ListItems lists items ordered by kind then code.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]ledger.Item, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Group != "" {
		args = append(args, filter.Group)
		where = append(where, fmt.Sprintf("item_group=$%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = append(where, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	sql := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY kind DESC, code ASC`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ledger.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const movementColumns = `id, item_kind, item_id, direction, qty, date::text, remark, ref_kind, ref_id, created_at, created_by`

func scanMovement(row pgx.Row) (ledger.Movement, error) {
	var (
		m       ledger.Movement
		refKind *string
		refID   *string
	)
	if err := row.Scan(&m.ID, &m.Item.Kind, &m.Item.ItemID, &m.Direction, &m.Qty, &m.Date, &m.Remark, &refKind, &refID, &m.CreatedAt, &m.CreatedBy); err != nil {
		return ledger.Movement{}, err
	}
	if refKind != nil && refID != nil {
		m.Ref = &ledger.DocRef{Kind: ledger.DocKind(*refKind), ID: *refID}
	}
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]ledger.Movement, error) {
	defer rows.Close()
	movements := []ledger.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListMovements lists movements newest first. Limit 0 returns everything.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]ledger.Movement, error) {
	var (
		where []string
		args  []any
	)
	if filter.Item != nil {
		args = append(args, filter.Item.Kind, filter.Item.ItemID)
		where = append(where, fmt.Sprintf("item_kind=$%d AND item_id=$%d", len(args)-1, len(args)))
	}
	if filter.Ref != nil {
		args = append(args, filter.Ref.Kind, filter.Ref.ID)
		where = append(where, fmt.Sprintf("ref_kind=$%d AND ref_id=$%d", len(args)-1, len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	sql := `SELECT ` + movementColumns + ` FROM movements`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// ListBalances returns every maintained balance row.
func (r *Repository) ListBalances(ctx context.Context) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_kind, item_id, qty, updated_at FROM stock_balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Item.Kind, &b.Item.ItemID, &b.Qty, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *txRepository) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	return getItem(ctx, r.tx, id)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, ref ledger.ItemRef) (Balance, error) {
	b := Balance{Item: ref}
	err := r.tx.QueryRow(ctx, `SELECT qty, updated_at FROM stock_balances WHERE item_kind=$1 AND item_id=$2 FOR UPDATE`, ref.Kind, ref.ItemID).
		Scan(&b.Qty, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, ErrBalanceNotFound
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (item_kind, item_id, qty, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (item_kind, item_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=EXCLUDED.updated_at`,
		balance.Item.Kind, balance.Item.ItemID, balance.Qty, balance.UpdatedAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m ledger.Movement) error {
	var refKind, refID *string
	if m.Ref != nil {
		kind := string(m.Ref.Kind)
		refKind, refID = &kind, &m.Ref.ID
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO movements (id, item_kind, item_id, direction, qty, date, remark, ref_kind, ref_id, created_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11)`,
		m.ID, m.Item.Kind, m.Item.ItemID, m.Direction, m.Qty, m.Date, m.Remark, refKind, refID, m.CreatedAt, m.CreatedBy)
	return err
}

func (r *txRepository) ListItemMovements(ctx context.Context, ref ledger.ItemRef) ([]ledger.Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM movements WHERE item_kind=$1 AND item_id=$2 ORDER BY date, id`, ref.Kind, ref.ItemID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func mapUnique(err error, field string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s already exists", shared.ErrConflict, field)
	}
	return err
}
