package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/marcelsud/webhook-gateway/webhook"
)

/*
PostgreSQL implementation of webhook.Repository

- (provider, event_id) is the primary key, so INSERT ... ON CONFLICT DO NOTHING
  is the atomic insert-if-absent used for deduplication
- attempts live in their own table, ordered by start time
- rows are never deleted here; retention belongs to an external job
*/

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	DB *sql.DB
}

// NewRepository opens a pgx-backed pool with default sizing (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig opens a pool with custom limits
// maxOpenConns: maximum simultaneous connections (0 = unlimited)
// maxIdleConns: idle connections kept in the pool
// maxLifeMinutes: maximum lifetime of a pooled connection
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{
		DB: db,
	}, nil
}

// Migrate applies the embedded schema migrations to databaseURL
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	runner, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("initializing migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

// Insert stores a new event unless (provider, event_id) already exists
func (r *Repository) Insert(ctx context.Context, event webhook.Event) error {
	query := `
		INSERT INTO webhook_events (provider, event_id, event_type, status, payload, deduplicable, received_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, event_id) DO NOTHING
	`

	result, err := r.DB.ExecContext(ctx, query,
		event.Provider,
		event.EventID,
		event.EventType,
		event.Status.String(),
		event.Payload,
		event.Deduplicable,
		event.ReceivedAt.UTC(),
		event.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrDuplicate
	}

	return nil
}

// Get returns an event together with its attempt history
func (r *Repository) Get(ctx context.Context, provider, eventID string) (webhook.Event, error) {
	query := `
		SELECT provider, event_id, event_type, status, payload, deduplicable, received_at, updated_at
		FROM webhook_events
		WHERE provider = $1 AND event_id = $2
	`

	var (
		event  webhook.Event
		status string
	)
	err := r.DB.QueryRowContext(ctx, query, provider, eventID).Scan(
		&event.Provider,
		&event.EventID,
		&event.EventType,
		&status,
		&event.Payload,
		&event.Deduplicable,
		&event.ReceivedAt,
		&event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Event{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}
	if err != nil {
		return webhook.Event{}, fmt.Errorf("selecting event: %w", err)
	}
	event.Status = webhook.NewStatus(status)

	attempts, err := r.attempts(ctx, provider, eventID)
	if err != nil {
		return webhook.Event{}, err
	}
	event.Attempts = attempts

	return event, nil
}

func (r *Repository) attempts(ctx context.Context, provider, eventID string) ([]webhook.Attempt, error) {
	query := `
		SELECT id, handler, number, outcome, error, started_at, finished_at
		FROM webhook_event_attempts
		WHERE provider = $1 AND event_id = $2
		ORDER BY started_at, number
	`

	rows, err := r.DB.QueryContext(ctx, query, provider, eventID)
	if err != nil {
		return nil, fmt.Errorf("selecting attempts: %w", err)
	}
	defer rows.Close()

	var attempts []webhook.Attempt
	for rows.Next() {
		var (
			a       webhook.Attempt
			outcome string
		)
		if err := rows.Scan(&a.ID, &a.Handler, &a.Number, &outcome, &a.Error, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Outcome = webhook.NewOutcome(outcome)
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}

	return attempts, nil
}

// UpdateStatus sets the aggregate status of an event
func (r *Repository) UpdateStatus(ctx context.Context, provider, eventID string, status webhook.Status) error {
	query := `
		UPDATE webhook_events
		SET status = $1, updated_at = $2
		WHERE provider = $3 AND event_id = $4
	`

	result, err := r.DB.ExecContext(ctx, query, status.String(), time.Now().UTC(), provider, eventID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	return nil
}

// AppendAttempt records an attempt and touches the parent event in one transaction
func (r *Repository) AppendAttempt(ctx context.Context, provider, eventID string, attempt webhook.Attempt) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE webhook_events SET updated_at = $1 WHERE provider = $2 AND event_id = $3`,
		time.Now().UTC(), provider, eventID,
	)
	if err != nil {
		return fmt.Errorf("touching event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_event_attempts (id, provider, event_id, handler, number, outcome, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		attempt.ID,
		provider,
		eventID,
		attempt.Handler,
		attempt.Number,
		attempt.Outcome.String(),
		attempt.Error,
		attempt.StartedAt.UTC(),
		attempt.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing attempt: %w", err)
	}
	return nil
}

// StatusCounts returns the number of events per status
func (r *Repository) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM webhook_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting statuses: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{
		webhook.Received.String():   0,
		webhook.Processing.String(): 0,
		webhook.Completed.String():  0,
		webhook.Failed.String():     0,
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

// ProviderCounts returns the number of stored events per provider
func (r *Repository) ProviderCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT provider, COUNT(*) FROM webhook_events GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("counting providers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			provider string
			n        int64
		)
		if err := rows.Scan(&provider, &n); err != nil {
			return nil, fmt.Errorf("scanning provider count: %w", err)
		}
		counts[provider] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider counts: %w", err)
	}
	return counts, nil
}

// CompletedSince counts events that reached completed after since
func (r *Repository) CompletedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE status = $1 AND updated_at >= $2`,
		webhook.Completed.String(), since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting completed events: %w", err)
	}
	return n, nil
}

// Close closes the database pool
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// DropTables removes the schema (useful for tests)
func (r *Repository) DropTables(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DROP TABLE IF EXISTS webhook_event_attempts, webhook_events, schema_migrations CASCADE`)
	if err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	return nil
}

var _ webhook.Repository = (*Repository)(nil)
