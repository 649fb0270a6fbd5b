package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one record to audit_logs.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, target_user_id, action, entity, entity_id, outcome, reason, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE(NULLIF($10, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		entry.ID, entry.ActorID, entry.TargetUser, entry.Action, entry.Entity, entry.EntityID,
		entry.Outcome, entry.Reason, metaJSON, entry.At)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

const selectColumns = `id, actor_id, target_user_id, action, entity, entity_id, outcome, reason, meta, occurred_at`

const filterClause = `
	($1::timestamptz IS NULL OR occurred_at >= $1)
	AND ($2::timestamptz IS NULL OR occurred_at <= $2)
	AND ($3::bigint = 0 OR actor_id = $3)
	AND ($4::bigint = 0 OR target_user_id = $4)
	AND ($5::text = '' OR action = $5)
	AND ($6::text = '' OR entity = $6)`

// Window returns one page of matching records, newest first.
func (r *Repository) Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_logs WHERE ` + filterClause + `
		ORDER BY occurred_at DESC, id DESC OFFSET $7 LIMIT $8`
	rows, err := r.pool.Query(ctx, query,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.Actor, filters.TargetUser, filters.Action, filters.Entity,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: window query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// All returns every matching record, newest first.
func (r *Repository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_logs WHERE ` + filterClause + `
		ORDER BY occurred_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.Actor, filters.TargetUser, filters.Action, filters.Entity)
	if err != nil {
		return nil, fmt.Errorf("audit: export query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DeleteOlderThan removes records before the horizon.
func (r *Repository) DeleteOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, horizon)
	if err != nil {
		return 0, fmt.Errorf("audit: retention delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.TargetUser, &e.Action, &e.Entity, &e.EntityID,
			&e.Outcome, &e.Reason, &metaJSON, &e.At); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return nil, fmt.Errorf("audit: unmarshal meta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
