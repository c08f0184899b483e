package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	args [][]any
	err  error
}

func (r *recordingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func TestCloneDetailsDetachesInput(t *testing.T) {
	lines := []any{map[string]any{"qty": 4}}
	details := map[string]any{"lines": lines}
	raw, err := CloneDetails(details, DefaultAuditDetailBytes)
	require.NoError(t, err)

	lines[0].(map[string]any)["qty"] = 99
	require.JSONEq(t, `{"lines":[{"qty":4}]}`, string(raw))
}

func TestCloneDetailsTruncatesOversizePayload(t *testing.T) {
	details := map[string]any{"blob": strings.Repeat("x", 200)}
	raw, err := CloneDetails(details, 64)
	require.NoError(t, err)

	var marker map[string]any
	require.NoError(t, json.Unmarshal(raw, &marker))
	require.Equal(t, true, marker["truncated"])
	require.Greater(t, marker["size"].(float64), float64(64))
}

func TestCloneDetailsRejectsUnserialisable(t *testing.T) {
	_, err := CloneDetails(map[string]any{"fn": func() {}}, 0)
	require.Error(t, err)
}

func TestAuditLoggerFillsDefaults(t *testing.T) {
	exec := &recordingExec{}
	logger := NewAuditLogger(exec, nil, 0)
	logger.clock = FixedClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	ctx := ContextWithActor(context.Background(), Actor{Username: "ana"})

	err := logger.Record(ctx, AuditLog{Action: "grn.create", Entity: "bill", EntityID: "b1", Details: map[string]any{"lines": 2}})
	require.NoError(t, err)
	require.Len(t, exec.args, 1)
	args := exec.args[0]
	require.NotEmpty(t, args[0])
	require.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), args[1])
	require.Equal(t, "ana", args[2])
	require.JSONEq(t, `{"lines":2}`, string(args[6].([]byte)))
}

func TestAuditLoggerReturnsStoreFailure(t *testing.T) {
	exec := &recordingExec{err: errors.New("db down")}
	err := NewAuditLogger(exec, nil, 0).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"})
	require.Error(t, err)
}

func TestAuditLoggerRequiresIdentity(t *testing.T) {
	err := NewAuditLogger(&recordingExec{}, nil, 0).Record(context.Background(), AuditLog{Action: "a"})
	require.Error(t, err)
}
