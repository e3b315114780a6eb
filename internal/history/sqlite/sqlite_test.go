package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/tether/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, sink.Close()) }()

	ctx := context.Background()
	rec := history.Record{
		RunID:      "run-1",
		Name:       "server",
		Executable: "/opt/app/server",
		PID:        12345,
		StartedAt:  time.Now().Add(-time.Minute).UTC(),
	}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventLaunch, OccurredAt: time.Now(), Record: rec}))

	port := 4321
	rec.Port = &port
	rec.Handshake = "complete"
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventHandshake, OccurredAt: time.Now(), Record: rec}))

	stopped := time.Now()
	rec.StoppedAt = &stopped
	rec.ExitErr = "signal: killed"
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventShutdown, OccurredAt: stopped, Record: rec}))

	n, err := sink.Count(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var gotPort *int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT port FROM backend_history WHERE event = 'handshake'`).Scan(&gotPort))
	require.NotNil(t, gotPort)
	require.Equal(t, 4321, *gotPort)
}

func TestSQLiteSink_MemoryAndEmpty(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventLaunch, Record: history.Record{RunID: "m"}}))
	n, err := sink.Count(context.Background(), "m")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, sink.Close())

	_, err = New("  ")
	require.Error(t, err)
}
