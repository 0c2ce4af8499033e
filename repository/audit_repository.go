package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jansunwai/models"
)

// execer is satisfied by *sql.DB and *sql.Tx; audit inserts ride the caller's
// transaction so a mutation and its audit row commit or roll back together.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const auditInsertQuery = `
	INSERT INTO audit_entries (
		entity_type, entity_id, action, old_value, new_value,
		actor_kind, actor_id, actor_role, reason, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertAuditTx(ctx context.Context, ex execer, e *models.AuditEntry) error {
	res, err := ex.ExecContext(ctx, auditInsertQuery,
		e.EntityType, e.EntityID, e.Action, e.OldValue, e.NewValue,
		e.ActorKind, e.ActorID, e.ActorRole, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit id: %w", err)
	}
	e.AuditID = id
	return nil
}

// AuditRepository reads the append-only ledger. Rows are never updated or
// deleted; there are no write methods outside the transactional helpers.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes a standalone audit entry (informational actions on terminal
// complaints, scheduler notes). State mutations use the transactional path.
func (r *AuditRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	return insertAuditTx(ctx, r.db, e)
}

const auditColumns = `
	audit_id, entity_type, entity_id, action, old_value, new_value,
	actor_kind, actor_id, actor_role, reason, created_at`

// ByEntity returns the latest entries for one entity, newest first.
func (r *AuditRepository) ByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.AuditEntry, error) {
	return r.query(ctx,
		`SELECT`+auditColumns+` FROM audit_entries
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY created_at DESC, audit_id DESC LIMIT ?`,
		entityType, entityID, limit)
}

// ByAction returns entries of one action kind within a time range, time-ordered.
func (r *AuditRepository) ByAction(ctx context.Context, action models.AuditAction, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	return r.query(ctx,
		`SELECT`+auditColumns+` FROM audit_entries
		 WHERE action = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at ASC, audit_id ASC LIMIT ?`,
		action, from, to, limit)
}

// ByActor returns a human actor's entries, newest first.
func (r *AuditRepository) ByActor(ctx context.Context, actorID int64, limit int) ([]models.AuditEntry, error) {
	return r.query(ctx,
		`SELECT`+auditColumns+` FROM audit_entries
		 WHERE actor_kind = ? AND actor_id = ?
		 ORDER BY created_at DESC, audit_id DESC LIMIT ?`,
		models.ActorUser, actorID, limit)
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.AuditID, &e.EntityType, &e.EntityID, &e.Action, &e.OldValue,
			&e.NewValue, &e.ActorKind, &e.ActorID, &e.ActorRole, &e.Reason,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
