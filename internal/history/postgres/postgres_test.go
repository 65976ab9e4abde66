package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bsantraigi/ntfy-agent/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	start := time.Now().UTC().Add(-time.Hour)
	e := history.Event{
		Type:           history.EventFinished,
		OccurredAt:     time.Now().UTC(),
		PID:            4242,
		StartedAt:      start,
		Cmdline:        "python3 train.py",
		User:           "alice",
		RuntimeSeconds: 3600,
	}
	if err := sink.Send(ctx, e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}

	var count int
	row := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_transitions WHERE pid = 4242`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestPostgresSinkEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
