package procurement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, id string) (Bill, error)
	ListBills(ctx context.Context, filter BillFilter) ([]Bill, error)
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	Poster() inventory.Poster
	Committed(ctx context.Context, movements []ledger.Movement)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]ledger.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates goods received notes.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	notifier    inventory.Notifier
	clock       shared.Clock
	logger      *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort, idem shared.Idempotency, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, inventory: inv, audit: audit, idempotency: idem, clock: clock, logger: logger}
}

// SetNotifier sets the change notifier.
func (s *Service) SetNotifier(n inventory.Notifier) {
	s.notifier = n
}

// CreateGRN stores the bill and posts one IN movement per line on the raw
// material, all in one transaction.
func (s *Service) CreateGRN(ctx context.Context, input CreateGRNInput, idemKey string) (GRN, error) {
	if err := shared.Validate(input); err != nil {
		return GRN{}, err
	}
	now := s.clock.Now()
	bill := Bill{
		ID:         shared.NewID(),
		Number:     inventory.NormalizeCode(input.Number),
		SupplierID: input.SupplierID,
		Date:       input.Date,
		Remark:     input.Remark,
		Lines:      inventory.DocLines(input.Lines),
		CreatedAt:  now,
		CreatedBy:  shared.ActorName(ctx),
	}
	if bill.Date == "" {
		bill.Date = now.Format(ledger.DateLayout)
	}
	if bill.Number == "" {
		bill.Number = inventory.DocNumber("GRN", bill.Date, bill.ID)
	}

	release, err := shared.Reserve(ctx, s.idempotency, idemKey, "procurement.grn")
	if err != nil {
		return GRN{}, err
	}
	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SupplierExists(ctx, bill.SupplierID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.FieldError("supplier_id", "unknown supplier")
		}
		if err := tx.InsertBill(ctx, bill); err != nil {
			return err
		}
		if err := tx.InsertBillLines(ctx, bill.ID, bill.Lines); err != nil {
			return err
		}
		inputs := inventory.DocMovements(bill.Lines, ledger.KindRM, ledger.In, bill.Date,
			ledger.DocRef{Kind: ledger.DocBill, ID: bill.ID}, "GRN "+bill.Number)
		movements, err = s.inventory.Poster().Post(ctx, tx, bill.CreatedBy, inputs)
		return err
	})
	if err != nil {
		release()
		return GRN{}, err
	}

	s.recordAudit(ctx, "grn.create", bill.ID, map[string]any{
		"number":      bill.Number,
		"supplier_id": bill.SupplierID,
		"date":        bill.Date,
		"lines":       bill.Lines,
	})
	s.inventory.Committed(ctx, movements)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "bills", bill.ID, "create")
	}
	s.logger.Info("grn issued", slog.String("number", bill.Number), slog.Int("lines", len(bill.Lines)))
	return GRN{Bill: bill, Movements: movements}, nil
}

// GetGRN returns a bill with its movements.
func (s *Service) GetGRN(ctx context.Context, id string) (GRN, error) {
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return GRN{}, err
	}
	movements, err := s.inventory.ListMovements(ctx, inventory.MovementFilter{Ref: &ledger.DocRef{Kind: ledger.DocBill, ID: id}})
	if err != nil {
		return GRN{}, err
	}
	return GRN{Bill: bill, Movements: movements}, nil
}

// ListGRNs lists bills newest first.
func (s *Service) ListGRNs(ctx context.Context, filter BillFilter) ([]Bill, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListBills(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: shared.ActorName(ctx), Action: action, Entity: "bill", EntityID: entityID, Details: details}); err != nil {
		s.logger.Debug("audit skipped", slog.String("action", action), slog.String("error", fmt.Sprint(err)))
	}
}
