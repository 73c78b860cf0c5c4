package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"support-router/internal/audit"
)

type fakeExec struct {
	sql  []string
	args [][]any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.err
}

func TestConnect_EmptyDSN(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
}

func TestEmit_InsertsRow(t *testing.T) {
	f := &fakeExec{}
	s := &Sink{db: f}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Emit(context.Background(), audit.Event{
		Time: ts, Agent: "classifier", Action: "classify_ticket", TicketID: "t-1",
		Details: map[string]any{"issue_type": "billing"},
	}))

	require.Len(t, f.sql, 1)
	require.Contains(t, f.sql[0], "INSERT INTO support_audit_events")
	require.Equal(t, ts, f.args[0][0])
	require.Equal(t, "t-1", f.args[0][3])
	require.JSONEq(t, `{"issue_type":"billing"}`, string(f.args[0][4].([]byte)))
}

func TestEmit_NilDetails(t *testing.T) {
	f := &fakeExec{}
	require.NoError(t, (&Sink{db: f}).Emit(context.Background(), audit.Event{Action: "x"}))
	require.JSONEq(t, `{}`, string(f.args[0][4].([]byte)))
}

func TestEnsureSchema_Error(t *testing.T) {
	s := &Sink{db: &fakeExec{err: errors.New("permission denied")}}
	require.ErrorContains(t, s.EnsureSchema(context.Background()), "permission denied")
}
