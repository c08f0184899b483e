package delivery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetNote(ctx context.Context, id string) (Note, error)
	ListNotes(ctx context.Context, filter NoteFilter) ([]Note, error)
}

// InventoryService is the part of inventory the delivery flow depends on.
type InventoryService interface {
	Poster() inventory.Poster
	Committed(ctx context.Context, movements []ledger.Movement)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]ledger.Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service issues delivery notes.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryService
	audit       AuditPort
	idempotency shared.Idempotency
	notifier    inventory.Notifier
	clock       shared.Clock
	logger      *slog.Logger
}

// NewService constructs the delivery service.
func NewService(repo RepositoryPort, inv InventoryService, audit AuditPort, idem shared.Idempotency, clock shared.Clock, logger *slog.Logger) *Service {
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

// Issue stores the note and posts one OUT movement per line on the finished
// good. Every line is checked against the locked balance; if any line is
// short the whole note is rejected and nothing is written.
func (s *Service) Issue(ctx context.Context, input CreateNoteInput, idemKey string) (Issued, error) {
	if err := shared.Validate(input); err != nil {
		return Issued{}, err
	}
	now := s.clock.Now()
	note := Note{
		ID:        shared.NewID(),
		Number:    inventory.NormalizeCode(input.Number),
		Customer:  strings.TrimSpace(input.Customer),
		Address:   strings.TrimSpace(input.Address),
		Date:      input.Date,
		Remark:    input.Remark,
		Lines:     inventory.DocLines(input.Lines),
		CreatedAt: now,
		CreatedBy: shared.ActorName(ctx),
	}
	if note.Date == "" {
		note.Date = now.Format(ledger.DateLayout)
	}
	if note.Number == "" {
		note.Number = inventory.DocNumber("DN", note.Date, note.ID)
	}

	release, err := shared.Reserve(ctx, s.idempotency, idemKey, "delivery.note")
	if err != nil {
		return Issued{}, err
	}
	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertNote(ctx, note); err != nil {
			return err
		}
		if err := tx.InsertNoteLines(ctx, note.ID, note.Lines); err != nil {
			return err
		}
		inputs := inventory.DocMovements(note.Lines, ledger.KindFG, ledger.Out, note.Date,
			ledger.DocRef{Kind: ledger.DocDelivery, ID: note.ID}, "DN "+note.Number)
		var err error
		movements, err = s.inventory.Poster().Post(ctx, tx, note.CreatedBy, inputs)
		return err
	})
	if err != nil {
		release()
		s.logger.Info("delivery note rejected", slog.String("customer", note.Customer), slog.Any("error", err))
		return Issued{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    note.CreatedBy,
			Action:   "dn.create",
			Entity:   "delivery_note",
			EntityID: note.ID,
			Details: map[string]any{
				"number":   note.Number,
				"customer": note.Customer,
				"date":     note.Date,
				"lines":    note.Lines,
			},
		})
	}
	s.inventory.Committed(ctx, movements)
	if s.notifier != nil {
		s.notifier.Notify(ctx, "delivery_notes", note.ID, "create")
	}
	return Issued{Note: note, Movements: movements}, nil
}

// Get returns a note with its movements.
func (s *Service) Get(ctx context.Context, id string) (Issued, error) {
	note, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return Issued{}, err
	}
	movements, err := s.inventory.ListMovements(ctx, inventory.MovementFilter{Ref: &ledger.DocRef{Kind: ledger.DocDelivery, ID: id}})
	if err != nil {
		return Issued{}, err
	}
	return Issued{Note: note, Movements: movements}, nil
}

// List lists notes newest first.
func (s *Service) List(ctx context.Context, filter NoteFilter) ([]Note, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListNotes(ctx, filter)
}
