package production

import (
	"context"
	"log/slog"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, filter inventory.DocFilter) ([]Run, error)
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	Poster() inventory.Poster
	Committed(ctx context.Context, movements []ledger.Movement)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]ledger.Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records production runs.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	notifier    inventory.Notifier
	clock       shared.Clock
	logger      *slog.Logger
}

// NewService constructs the production service.
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

// Record stores the run and posts one IN movement per line on the finished good.
func (s *Service) Record(ctx context.Context, input CreateRunInput, idemKey string) (Recorded, error) {
	if err := shared.Validate(input); err != nil {
		return Recorded{}, err
	}
	now := s.clock.Now()
	run := Run{
		ID:        shared.NewID(),
		Number:    inventory.NormalizeCode(input.Number),
		Date:      input.Date,
		Remark:    input.Remark,
		Lines:     inventory.DocLines(input.Lines),
		CreatedAt: now,
		CreatedBy: shared.ActorName(ctx),
	}
	if run.Date == "" {
		run.Date = now.Format(ledger.DateLayout)
	}
	if run.Number == "" {
		run.Number = inventory.DocNumber("PRD", run.Date, run.ID)
	}

	release, err := shared.Reserve(ctx, s.idempotency, idemKey, "production.run")
	if err != nil {
		return Recorded{}, err
	}
	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRun(ctx, run); err != nil {
			return err
		}
		if err := tx.InsertRunLines(ctx, run.ID, run.Lines); err != nil {
			return err
		}
		inputs := inventory.DocMovements(run.Lines, ledger.KindFG, ledger.In, run.Date,
			ledger.DocRef{Kind: ledger.DocProduction, ID: run.ID}, "Production "+run.Number)
		var err error
		movements, err = s.inventory.Poster().Post(ctx, tx, run.CreatedBy, inputs)
		return err
	})
	if err != nil {
		release()
		return Recorded{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    run.CreatedBy,
			Action:   "production.create",
			Entity:   "production",
			EntityID: run.ID,
			Details:  map[string]any{"number": run.Number, "date": run.Date, "lines": run.Lines},
		})
	}
	s.inventory.Committed(ctx, movements)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "productions", run.ID, "create")
	}
	return Recorded{Run: run, Movements: movements}, nil
}

// Get returns a run and its movements.
func (s *Service) Get(ctx context.Context, id string) (Recorded, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return Recorded{}, err
	}
	movements, err := s.inventory.ListMovements(ctx, inventory.MovementFilter{Ref: &ledger.DocRef{Kind: ledger.DocProduction, ID: id}})
	if err != nil {
		return Recorded{}, err
	}
	return Recorded{Run: run, Movements: movements}, nil
}

// List lists runs newest first.
func (s *Service) List(ctx context.Context, filter inventory.DocFilter) ([]Run, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListRuns(ctx, filter)
}
