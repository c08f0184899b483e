package suppliers

import (
	"context"

	"github.com/stockbook/stockbook/internal/masterdata/shared"
	internalShared "github.com/stockbook/stockbook/internal/shared"
)

// AuditPort records supplier mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Notifier publishes supplier changes.
type Notifier interface {
	Notify(ctx context.Context, collection, id, op string)
}

type Service struct {
	repo     Repository
	audit    AuditPort
	notifier Notifier
	clock    internalShared.Clock
}

func NewService(repo Repository, audit AuditPort, clock internalShared.Clock) *Service {
	if clock == nil {
		clock = internalShared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, clock: clock}
}

// SetNotifier sets the change notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters.Normalize())
}

func (s *Service) Get(ctx context.Context, id string) (Supplier, error) {
	if id == "" {
		return Supplier{}, ErrSupplierNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Supplier, error) {
	in, err := s.validate(in)
	if err != nil {
		return Supplier{}, err
	}
	now := s.clock.Now()
	supplier := Supplier{
		ID:        internalShared.NewID(),
		Code:      in.Code,
		Name:      in.Name,
		Contact:   in.Contact,
		Phone:     in.Phone,
		Email:     in.Email,
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, supplier); err != nil {
		return Supplier{}, err
	}
	s.changed(ctx, "supplier.create", supplier.ID, "create", map[string]any{"after": supplier})
	return supplier, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (Supplier, error) {
	in, err := s.validate(in)
	if err != nil {
		return Supplier{}, err
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	after := before
	after.Code, after.Name, after.Contact = in.Code, in.Name, in.Contact
	after.Phone, after.Email, after.Address = in.Phone, in.Email, in.Address
	after.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, after); err != nil {
		return Supplier{}, err
	}
	s.changed(ctx, "supplier.update", id, "update", map[string]any{"before": before, "after": after})
	return after, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	before, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "supplier.delete", id, "delete", map[string]any{"before": before})
	return nil
}

func (s *Service) changed(ctx context.Context, action, id, op string, details map[string]any) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Action:   action,
			Entity:   "supplier",
			EntityID: id,
			Details:  details,
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "suppliers", id, op)
	}
}
