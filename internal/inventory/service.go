package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateItem(ctx context.Context, item ledger.Item) error
	UpdateItem(ctx context.Context, item ledger.Item) error
	GetItem(ctx context.Context, id string) (ledger.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]ledger.Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]ledger.Movement, error)
	ListBalances(ctx context.Context) ([]Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer is told about movements after their transaction commits.
type Observer interface {
	MovementsPosted(ctx context.Context, movements []ledger.Movement)
}

// Observers fans one notification out to many observers.
type Observers []Observer

// MovementsPosted implements Observer.
func (o Observers) MovementsPosted(ctx context.Context, movements []ledger.Movement) {
	for _, obs := range o {
		if obs != nil {
			obs.MovementsPosted(ctx, movements)
		}
	}
}

// Notifier publishes entity changes to subscribers.
type Notifier interface {
	Notify(ctx context.Context, collection, id, op string)
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	poster      Poster
	observers   Observers
	notifier    Notifier
	clock       shared.Clock
	logger      *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	Clock              shared.Clock
	Logger             *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem shared.Idempotency, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		poster:      Poster{AllowNegative: cfg.AllowNegativeStock, Clock: clock},
		clock:       clock,
		logger:      logger,
	}
}

// Observe registers observers for committed movements.
func (s *Service) Observe(obs ...Observer) {
	s.observers = append(s.observers, obs...)
}

// SetNotifier sets the change notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Poster returns the movement poster shared with document flows.
func (s *Service) Poster() Poster {
	return s.poster
}

// Committed informs observers and the notifier about committed movements.
// Document flows call it after their own transaction commits.
func (s *Service) Committed(ctx context.Context, movements []ledger.Movement) {
	if len(movements) == 0 {
		return
	}
	s.observers.MovementsPosted(ctx, movements)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "movements", movements[0].ID, "create")
		s.notifier.Notify(ctx, "balances", movements[0].Item.String(), "update")
	}
}

// CreateItem validates and stores a new item.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (ledger.Item, error) {
	input = input.normalized()
	if err := shared.Validate(input); err != nil {
		return ledger.Item{}, err
	}
	now := s.clock.Now()
	item := ledger.Item{
		ID:        shared.NewID(),
		Kind:      input.Kind,
		Code:      input.Code,
		Name:      input.Name,
		Category:  input.Category,
		Group:     input.Group,
		Threshold: input.Threshold,
		QtyPerFG:  input.QtyPerFG,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return ledger.Item{}, err
	}
	s.record(ctx, "item.create", "item", item.ID, map[string]any{"kind": item.Kind, "code": item.Code, "name": item.Name, "threshold": item.Threshold})
	s.notify(ctx, "items", item.ID, "create")
	return item, nil
}

// UpdateItem edits an item. The kind of an existing item never changes.
func (s *Service) UpdateItem(ctx context.Context, id string, input ItemInput) (ledger.Item, error) {
	input = input.normalized()
	if err := shared.Validate(input); err != nil {
		return ledger.Item{}, err
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return ledger.Item{}, err
	}
	if item.Kind != input.Kind {
		return ledger.Item{}, shared.FieldError("kind", "cannot change item kind")
	}
	before := map[string]any{"code": item.Code, "name": item.Name, "threshold": item.Threshold}
	item.Code = input.Code
	item.Name = input.Name
	item.Category = input.Category
	item.Group = input.Group
	item.Threshold = input.Threshold
	item.QtyPerFG = input.QtyPerFG
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return ledger.Item{}, err
	}
	s.record(ctx, "item.update", "item", item.ID, map[string]any{
		"before": before,
		"after":  map[string]any{"code": item.Code, "name": item.Name, "threshold": item.Threshold},
	})
	s.notify(ctx, "items", item.ID, "update")
	return item, nil
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems lists items in code order.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]ledger.Item, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.FieldError("kind", "must be RM or FG")
	}
	return s.repo.ListItems(ctx, filter)
}

// StockIn posts a single IN movement.
func (s *Service) StockIn(ctx context.Context, req StockRequest, idemKey string) (StockResult, error) {
	return s.stock(ctx, ledger.In, req, idemKey)
}

// StockOut posts a single OUT movement guarded by the balance on hand.
func (s *Service) StockOut(ctx context.Context, req StockRequest, idemKey string) (StockResult, error) {
	return s.stock(ctx, ledger.Out, req, idemKey)
}

func (s *Service) stock(ctx context.Context, dir ledger.Direction, req StockRequest, idemKey string) (StockResult, error) {
	if err := shared.Validate(req); err != nil {
		return StockResult{}, err
	}
	action := "stock.in"
	if dir == ledger.Out {
		action = "stock.out"
	}
	release, err := shared.Reserve(ctx, s.idempotency, idemKey, "inventory."+action)
	if err != nil {
		return StockResult{}, err
	}
	actor := shared.ActorName(ctx)
	ref := ledger.ItemRef{Kind: req.Kind, ItemID: req.ItemID}

	var result StockResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.poster.Post(ctx, tx, actor, []MovementInput{{
			Item:      ref,
			Direction: dir,
			Qty:       req.Qty,
			Date:      req.Date,
			Remark:    req.Remark,
		}})
		if err != nil {
			return err
		}
		bal, err := tx.GetBalanceForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		result = StockResult{Movement: posted[0], Balance: bal.Qty}
		return nil
	})
	if err != nil {
		release()
		return StockResult{}, err
	}

	s.record(ctx, action, "movement", result.Movement.ID, map[string]any{
		"item":    ref.String(),
		"qty":     req.Qty,
		"date":    result.Movement.Date,
		"remark":  req.Remark,
		"balance": result.Balance,
	})
	s.Committed(ctx, []ledger.Movement{result.Movement})
	return result, nil
}

// Balance recomputes the balance of ref from its full movement history.
func (s *Service) Balance(ctx context.Context, ref ledger.ItemRef) (ledger.StockLine, error) {
	if !ref.Kind.Valid() || ref.ItemID == "" {
		return ledger.StockLine{}, shared.FieldError("item", "invalid item reference")
	}
	item, err := s.repo.GetItem(ctx, ref.ItemID)
	if err != nil {
		return ledger.StockLine{}, err
	}
	if item.Kind != ref.Kind {
		return ledger.StockLine{}, ErrItemNotFound
	}
	movements, err := s.repo.ListMovements(ctx, MovementFilter{Item: &ref})
	if err != nil {
		return ledger.StockLine{}, err
	}
	bal := ledger.ComputeBalance(ref, movements)
	return ledger.StockLine{Item: item, Balance: bal, Level: ledger.LevelOf(item, bal)}, nil
}

// Balances returns every item with its maintained balance and alert level.
func (s *Service) Balances(ctx context.Context, filter ItemFilter) ([]ledger.StockLine, error) {
	items, err := s.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	byRef := make(map[ledger.ItemRef]int64, len(rows))
	for _, row := range rows {
		byRef[row.Item] = row.Qty
	}
	lines := make([]ledger.StockLine, 0, len(items))
	for _, item := range items {
		bal := byRef[item.Ref()]
		lines = append(lines, ledger.StockLine{Item: item, Balance: bal, Level: ledger.LevelOf(item, bal)})
	}
	return lines, nil
}

// LowStock lists items at or below threshold, in item order.
func (s *Service) LowStock(ctx context.Context, limit int) ([]ledger.StockLine, int, error) {
	lines, err := s.Balances(ctx, ItemFilter{})
	if err != nil {
		return nil, 0, err
	}
	items := make([]ledger.Item, 0, len(lines))
	balances := make(map[ledger.ItemRef]int64, len(lines))
	for _, line := range lines {
		items = append(items, line.Item)
		balances[line.Item.Ref()] = line.Balance
	}
	low, total := ledger.LowStock(items, balances, limit)
	return low, total, nil
}

// MaxMovementsPage caps one page of the movement listing.
const MaxMovementsPage = 500

// ListMovements lists ledger entries, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]ledger.Movement, error) {
	if filter.Item != nil && !filter.Item.Kind.Valid() {
		return nil, shared.FieldError("kind", "must be RM or FG")
	}
	if err := ValidateDateRange(filter.From, filter.To); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	if filter.Limit > MaxMovementsPage {
		filter.Limit = MaxMovementsPage
	}
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile recomputes every item balance from the ledger and repairs the
// maintained row when it drifted. Each item is checked in its own transaction.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	items, err := s.repo.ListItems(ctx, ItemFilter{})
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{Repaired: []ReconcileDrift{}}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ref := item.Ref()
		var drift *ReconcileDrift
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			drift = nil
			stored, err := tx.GetBalanceForUpdate(ctx, ref)
			if err != nil && !errors.Is(err, ErrBalanceNotFound) {
				return err
			}
			movements, err := tx.ListItemMovements(ctx, ref)
			if err != nil {
				return err
			}
			computed := ledger.ComputeBalance(ref, movements)
			if computed == stored.Qty {
				return nil
			}
			drift = &ReconcileDrift{Item: ref, Stored: stored.Qty, Computed: computed}
			return tx.UpsertBalance(ctx, Balance{Item: ref, Qty: computed, UpdatedAt: s.clock.Now()})
		})
		if err != nil {
			return report, fmt.Errorf("inventory: reconcile %s: %w", ref, err)
		}
		if drift != nil {
			report.Repaired = append(report.Repaired, *drift)
		}
		report.Checked++
	}
	for _, drift := range report.Repaired {
		s.logger.Warn("balance drift repaired",
			slog.String("item", drift.Item.String()),
			slog.Int64("stored", drift.Stored),
			slog.Int64("computed", drift.Computed))
		s.record(ctx, "ledger.reconcile", "balance", drift.Item.String(), map[string]any{"stored": drift.Stored, "computed": drift.Computed})
	}
	if len(report.Repaired) > 0 {
		s.notify(ctx, "balances", "", "update")
	}
	return report, nil
}

func (s *Service) record(ctx context.Context, action, entity, id string, details map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorName(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Details:  details,
	})
}

func (s *Service) notify(ctx context.Context, collection, id, op string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, collection, id, op)
	}
}
