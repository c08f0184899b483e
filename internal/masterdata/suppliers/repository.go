package suppliers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook/stockbook/internal/masterdata/shared"
	internalShared "github.com/stockbook/stockbook/internal/shared"
)

// ErrSupplierNotFound indicates an unknown supplier id.
var ErrSupplierNotFound = fmt.Errorf("%w: supplier", internalShared.ErrNotFound)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id string) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) error
	Update(ctx context.Context, supplier Supplier) error
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, code, name, contact, phone, email, address, created_at, updated_at`

func scan(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Contact, &s.Phone, &s.Email, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	where := ``
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = ` WHERE (name ILIKE $1 OR code ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM suppliers` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	suppliers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Supplier, error) {
		return scan(row)
	})
	return suppliers, total, err
}

func (r *repository) Get(ctx context.Context, id string) (Supplier, error) {
	s, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, s Supplier) error {
	_, err := r.db.Exec(ctx, `INSERT INTO suppliers (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Code, s.Name, s.Contact, s.Phone, s.Email, s.Address, s.CreatedAt, s.UpdatedAt)
	return mapUnique(err, s.Code)
}

func (r *repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $1, name = $2, contact = $3, phone = $4, email = $5, address = $6, updated_at = $7 WHERE id = $8`,
		s.Code, s.Name, s.Contact, s.Phone, s.Email, s.Address, s.UpdatedAt, s.ID)
	if err != nil {
		return mapUnique(err, s.Code)
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: supplier is referenced by goods received notes", internalShared.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func mapUnique(err error, code string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: supplier code %s already exists", internalShared.ErrConflict, code)
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
