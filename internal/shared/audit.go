package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultAuditDetailBytes caps the serialised details payload.
const DefaultAuditDetailBytes = 16 << 10

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Details  map[string]any `json:"details,omitempty"`
}

// Execer is the subset of pgxpool.Pool used by the audit logger.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends records into audit_logs.
type AuditLogger struct {
	db       Execer
	logger   *slog.Logger
	clock    Clock
	maxBytes int
}

// NewAuditLogger returns a new AuditLogger. maxBytes <= 0 uses DefaultAuditDetailBytes.
func NewAuditLogger(db Execer, logger *slog.Logger, maxBytes int) *AuditLogger {
	if maxBytes <= 0 {
		maxBytes = DefaultAuditDetailBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{db: db, logger: logger, clock: SystemClock{}, maxBytes: maxBytes}
}

// Record persists the log entry. Failures are logged and returned; callers
// treat audit as fire-and-forget and ignore the error.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.ID == "" {
		log.ID = NewID()
	}
	if log.At.IsZero() {
		log.At = l.clock.Now()
	}
	if log.Actor == "" {
		log.Actor = ActorName(ctx)
	}
	details, err := CloneDetails(log.Details, l.maxBytes)
	if err != nil {
		l.logger.Warn("audit details not serialisable", slog.String("action", log.Action), slog.Any("error", err))
		details = []byte(`{"unserialisable":true}`)
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (id, at, actor, action, entity, entity_id, details) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.At, log.Actor, log.Action, log.Entity, log.EntityID, details)
	if err != nil {
		l.logger.Error("audit record failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
		return err
	}
	return nil
}

// CloneDetails serialises details into a detached JSON document. Payloads
// larger than maxBytes are replaced by a truncation marker.
func CloneDetails(details map[string]any, maxBytes int) ([]byte, error) {
	if len(details) == 0 {
		return []byte(`{}`), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return json.Marshal(map[string]any{"truncated": true, "size": len(raw)})
	}
	return raw, nil
}
