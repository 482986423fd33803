// Package postgres provides the Postgres-backed scan result store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitesleuth/sitesleuth/internal/scan"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for scan rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists scan records in Postgres.
//
// Expected schema:
//
//	CREATE TABLE scans (
//		id UUID PRIMARY KEY,
//		owner_id TEXT NOT NULL,
//		fingerprint TEXT NOT NULL,
//		url TEXT NOT NULL,
//		summary TEXT NOT NULL,
//		risk_score INT NOT NULL,
//		reason TEXT NOT NULL,
//		category TEXT NOT NULL,
//		tags JSONB NOT NULL DEFAULT '[]',
//		created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX scans_owner_fp_idx ON scans (owner_id, fingerprint, created_at DESC);
type Store struct {
	pool  pgxPool
	clock scan.Clock
	table string
}

var _ scan.ResultStore = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, clock scan.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table, clock)
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string, clock scan.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = "scans"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, clock: clock, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Lookup returns the newest record for (fingerprint, owner) created within
// the freshness window, or nil when none qualifies. Anonymous callers
// (empty owner) never get a hit.
func (s *Store) Lookup(ctx context.Context, fp scan.Fingerprint, ownerID string) (*scan.ScanRecord, error) {
	if ownerID == "" {
		return nil, nil
	}
	cutoff := s.clock.Now().Add(-scan.FreshnessWindow)
	query := fmt.Sprintf(`
SELECT id, owner_id, fingerprint, url, summary, risk_score, reason, category, tags, created_at
FROM %s
WHERE owner_id = $1 AND fingerprint = $2 AND created_at > $3
ORDER BY created_at DESC
LIMIT 1`, s.table)

	record, err := scanRow(s.pool.QueryRow(ctx, query, ownerID, string(fp), cutoff))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: lookup scan: %v", scan.ErrStoreFailed, err)
	}
	return record, nil
}

// Save inserts a new scan row. Repeated scans of the same URL produce
// additional rows; freshness filtering at lookup keeps the cache logical.
func (s *Store) Save(ctx context.Context, record scan.ScanRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, owner_id, fingerprint, url, summary, risk_score, reason, category, tags, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, s.table)

	args := []any{
		record.ID,
		record.OwnerID,
		string(record.Fingerprint),
		record.URL,
		record.Summary,
		record.RiskScore,
		record.Reason,
		record.Category,
		tagsJSON,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert scan: %v", scan.ErrStoreFailed, err)
	}
	return nil
}

// ListRecent returns up to limit records for the owner, newest first.
func (s *Store) ListRecent(ctx context.Context, ownerID string, limit int) ([]scan.ScanRecord, error) {
	if ownerID == "" || limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, owner_id, fingerprint, url, summary, risk_score, reason, category, tags, created_at
FROM %s
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list scans: %v", scan.ErrStoreFailed, err)
	}
	defer rows.Close()

	var records []scan.ScanRecord
	for rows.Next() {
		record, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", scan.ErrStoreFailed, err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate scans: %v", scan.ErrStoreFailed, err)
	}
	return records, nil
}

func scanRow(row pgx.Row) (*scan.ScanRecord, error) {
	var (
		record   scan.ScanRecord
		fp       string
		tagsJSON []byte
	)
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&fp,
		&record.URL,
		&record.Summary,
		&record.RiskScore,
		&record.Reason,
		&record.Category,
		&tagsJSON,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Fingerprint = scan.Fingerprint(fp)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &record.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &record, nil
}
