package users

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id string) error
}

// AuditPort records account mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CredentialCache is dropped whenever an account changes.
type CredentialCache interface {
	Forget()
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	creds  CredentialCache
	clock  shared.Clock
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, creds CredentialCache, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, creds: creds, clock: clock, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser hashes the password and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (User, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.Validate(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	now := s.clock.Now()
	user := User{
		ID:           shared.NewID(),
		Username:     in.Username,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	s.record(ctx, "user.create", user.ID, map[string]any{"after": user})
	return user, nil
}

// UpdateUser changes profile, role, active flag and optionally the password.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.Validate(in); err != nil {
		return User{}, err
	}
	before, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	after := before
	after.Name = in.Name
	after.Role = in.Role
	if in.Active != nil {
		after.IsActive = *in.Active
	}
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.ID == id {
		if after.Role != before.Role || !after.IsActive {
			return User{}, ErrSelfLockout
		}
	}
	passwordChanged := in.Password != ""
	if passwordChanged {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
		if err != nil {
			return User{}, err
		}
		after.PasswordHash = string(hash)
	}
	after.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateUser(ctx, after); err != nil {
		return User{}, err
	}
	s.forget()
	s.record(ctx, "user.update", id, map[string]any{"before": before, "after": after, "password_changed": passwordChanged})
	return after, nil
}

// DeleteUser removes an account other than the caller's own.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.ID == id {
		return ErrSelfLockout
	}
	before, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.forget()
	s.record(ctx, "user.delete", id, map[string]any{"before": before})
	return nil
}

// EnsureBootstrapAdmin creates the first admin account when the users table
// is empty. It is a no-op once any account exists.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	user, err := s.CreateUser(ctx, CreateInput{Username: username, Name: "Administrator", Role: shared.RoleAdmin, Password: password})
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", slog.String("username", user.Username))
	return true, nil
}

func (s *Service) forget() {
	if s.creds != nil {
		s.creds.Forget()
	}
}

func (s *Service) record(ctx context.Context, action, id string, details map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "user", EntityID: id, Details: details})
}
