package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/stockbook/stockbook/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	verified map[string]verifiedEntry
}

type verifiedEntry struct {
	user    User
	expires time.Time
}

// NewService constructs a new Service. Successful verifications are reused
// for ttl so that repeated Basic auth requests skip bcrypt.
func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now, verified: make(map[string]verifiedEntry)}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	key := credentialKey(username, password)
	if user, ok := s.cached(key); ok {
		return &user, nil
	}
	// Followers share the leader's lookup, so it must outlive the leader's request.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		user, err := s.repo.FindByUsername(lookupCtx, username)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("auth: find user: %w", err)
		}
		if !user.IsActive {
			return nil, shared.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return nil, shared.ErrInvalidCredentials
		}
		s.remember(key, *user)
		return *user, nil
	})
	if err != nil {
		return nil, err
	}
	user := v.(User)
	return &user, nil
}

// Forget drops cached verifications, e.g. after a password or role change.
func (s *Service) Forget() {
	s.mu.Lock()
	s.verified = make(map[string]verifiedEntry)
	s.mu.Unlock()
}

func (s *Service) cached(key string) (User, bool) {
	if s.ttl <= 0 {
		return User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.verified[key]
	if !ok {
		return User{}, false
	}
	if s.now().After(entry.expires) {
		delete(s.verified, key)
		return User{}, false
	}
	return entry.user, true
}

func (s *Service) remember(key string, user User) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.verified[key] = verifiedEntry{user: user, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func credentialKey(username, password string) string {
	sum := sha256.Sum256([]byte(username + "\x00" + password))
	return hex.EncodeToString(sum[:])
}
