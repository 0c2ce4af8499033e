package repository

import (
	"context"
	"database/sql"
	"fmt"

	"jansunwai/models"
)

const escalationInsertQuery = `
	INSERT INTO escalations (
		complaint_id, from_level, to_level, triggered_at, reason, notified_role, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

func insertEscalationTx(ctx context.Context, ex execer, e *models.EscalationEvent) error {
	res, err := ex.ExecContext(ctx, escalationInsertQuery,
		e.ComplaintID, int(e.FromLevel), int(e.ToLevel), e.TriggeredAt,
		e.Reason, e.NotifiedRole, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get escalation id: %w", err)
	}
	e.EscalationID = id
	return nil
}

// EscalationRepository reads the materialized escalation view.
type EscalationRepository struct {
	db *sql.DB
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// ByComplaint returns a complaint's escalation events, oldest first.
func (r *EscalationRepository) ByComplaint(ctx context.Context, complaintID int64) ([]models.EscalationEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT escalation_id, complaint_id, from_level, to_level, triggered_at,
		       reason, notified_role, created_at
		FROM escalations
		WHERE complaint_id = ?
		ORDER BY triggered_at ASC, escalation_id ASC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	var events []models.EscalationEvent
	for rows.Next() {
		var e models.EscalationEvent
		var from, to int
		var role string
		if err := rows.Scan(&e.EscalationID, &e.ComplaintID, &from, &to,
			&e.TriggeredAt, &e.Reason, &role, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		e.FromLevel = models.EscalationLevel(from)
		e.ToLevel = models.EscalationLevel(to)
		e.NotifiedRole = models.Role(role)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalations: %w", err)
	}
	return events, nil
}
