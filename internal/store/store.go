// Package store persists verdicts to PostgreSQL for auditing. Persistence
// is optional: when no database is configured the pipeline runs without it.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logsieve/logsieve/internal/accesslog"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrations embed.FS

// AuditEntry is one persisted verdict joined with the record that produced it.
type AuditEntry struct {
	ID          int64     `json:"id"`
	ClientIP    string    `json:"client_ip"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	UserAgent   string    `json:"user_agent"`
	IsAttack    bool      `json:"is_attack"`
	AttackScore float64   `json:"attack_score"`
	AttackType  string    `json:"attack_type,omitempty"`
	LoggedAt    string    `json:"logged_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store wraps a pgx connection pool for the verdict audit trail.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens the pool against dsn and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	s.logger.Info("audit store migrated")
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertBatch persists a classified batch with a single COPY. records and
// verdicts must be row-aligned.
func (s *Store) InsertBatch(ctx context.Context, records []accesslog.Record, verdicts []accesslog.Verdict) error {
	if len(records) != len(verdicts) {
		return fmt.Errorf("record/verdict length mismatch: %d vs %d", len(records), len(verdicts))
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		v := verdicts[i]
		rows[i] = []any{
			rec.ClientIP, rec.Method, rec.URL, int(rec.StatusCode), rec.UserAgent,
			v.IsAttack, v.AttackScore, v.AttackType, rec.LoggedAt,
		}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"verdicts"},
		[]string{"client_ip", "method", "url", "status_code", "user_agent",
			"is_attack", "attack_score", "attack_type", "logged_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy verdicts: %w", err)
	}
	return nil
}

// Recent returns the newest audit entries, attacks only when attacksOnly is
// set, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int, attacksOnly bool) ([]AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, client_ip, method, url, status_code, user_agent,
	                 is_attack, attack_score, attack_type, logged_at, created_at
	          FROM verdicts`
	if attacksOnly {
		query += ` WHERE is_attack`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ClientIP, &e.Method, &e.URL, &e.StatusCode,
			&e.UserAgent, &e.IsAttack, &e.AttackScore, &e.AttackType,
			&e.LoggedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one audit entry by id.
func (s *Store) Get(ctx context.Context, id int64) (*AuditEntry, error) {
	var e AuditEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, client_ip, method, url, status_code, user_agent,
		        is_attack, attack_score, attack_type, logged_at, created_at
		 FROM verdicts WHERE id = $1`, id).
		Scan(&e.ID, &e.ClientIP, &e.Method, &e.URL, &e.StatusCode,
			&e.UserAgent, &e.IsAttack, &e.AttackScore, &e.AttackType,
			&e.LoggedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
