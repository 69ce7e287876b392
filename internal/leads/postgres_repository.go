package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxIface is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository archives leads in the relational database.
type PostgresRepository struct {
	pool PgxIface
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxIface) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the archive table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lead_archive (
			lead_id       TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			phone         TEXT NOT NULL,
			emirates      TEXT NOT NULL DEFAULT '',
			symptoms      TEXT NOT NULL DEFAULT '',
			page_url      TEXT NOT NULL DEFAULT '',
			campaign_name TEXT NOT NULL DEFAULT '',
			gclid         TEXT NOT NULL DEFAULT '',
			fbclid        TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("leads: ensure schema: %w", err)
	}
	return nil
}

// Archive inserts a row. Re-archiving the same lead id is a no-op so a
// retried submission never duplicates the archive.
func (r *PostgresRepository) Archive(ctx context.Context, record *LeadRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO lead_archive (lead_id, name, phone, emirates, symptoms, page_url, campaign_name, gclid, fbclid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lead_id) DO NOTHING
		RETURNING created_at
	`
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query,
		record.LeadID,
		record.Name,
		record.Phone,
		record.Emirates,
		record.Symptoms,
		record.PageURL,
		record.CampaignName,
		record.GCLID,
		record.FBCLID,
	).Scan(&createdAt)
	if err == pgx.ErrNoRows {
		// Conflict: already archived.
		return nil
	}
	if err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	record.CreatedAt = createdAt
	return nil
}

// ListRecent fetches up to limit leads, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*LeadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT lead_id, name, phone, emirates, symptoms, page_url, campaign_name, gclid, fbclid, created_at
		FROM lead_archive
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	defer rows.Close()

	var out []*LeadRecord
	for rows.Next() {
		var rec LeadRecord
		if err := rows.Scan(
			&rec.LeadID,
			&rec.Name,
			&rec.Phone,
			&rec.Emirates,
			&rec.Symptoms,
			&rec.PageURL,
			&rec.CampaignName,
			&rec.GCLID,
			&rec.FBCLID,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows: %w", err)
	}
	return out, nil
}
