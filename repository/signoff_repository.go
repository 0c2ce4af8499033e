package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jansunwai/models"
)

// SignoffRepository handles citizen sign-off persistence. At most one signoff
// is active per resolution cycle.
type SignoffRepository struct {
	db *sql.DB
}

// NewSignoffRepository creates a new signoff repository
func NewSignoffRepository(db *sql.DB) *SignoffRepository {
	return &SignoffRepository{db: db}
}

const signoffColumns = `
	signoff_id, complaint_id, cycle, accepted, disputed, rating, dispute_reason,
	counter_proof_handle, approved, review_reason, reviewed_by, reviewed_at, signed_at`

// Insert persists a new signoff.
func (r *SignoffRepository) Insert(ctx context.Context, s *models.CitizenSignoff) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO citizen_signoffs (
			complaint_id, cycle, accepted, disputed, rating, dispute_reason,
			counter_proof_handle, signed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ComplaintID, s.Cycle, s.Accepted, s.Disputed, s.Rating,
		s.DisputeReason, s.CounterProofHandle, s.SignedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signoff: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get signoff id: %w", err)
	}
	s.SignoffID = id
	return nil
}

// Get retrieves a signoff by id.
func (r *SignoffRepository) Get(ctx context.Context, signoffID int64) (*models.CitizenSignoff, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+signoffColumns+` FROM citizen_signoffs WHERE signoff_id = ?`, signoffID)
	s, err := scanSignoff(row)
	if err == sql.ErrNoRows {
		return nil, models.Ef(models.KindNotFound, "signoff %d not found", signoffID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signoff: %w", err)
	}
	return s, nil
}

// ForCycle returns the signoff for a complaint's resolution cycle, or nil.
func (r *SignoffRepository) ForCycle(ctx context.Context, complaintID int64, cycle int) (*models.CitizenSignoff, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+signoffColumns+` FROM citizen_signoffs
		WHERE complaint_id = ? AND cycle = ?
		ORDER BY signed_at DESC LIMIT 1`, complaintID, cycle)
	s, err := scanSignoff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signoff: %w", err)
	}
	return s, nil
}

// RecordReview writes the department head's dispute decision. The row keeps
// its dispute fields; only the review outcome is filled in.
func (r *SignoffRepository) RecordReview(ctx context.Context, signoffID int64, approved bool, reason string, reviewerID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE citizen_signoffs
		SET approved = ?, review_reason = ?, reviewed_by = ?, reviewed_at = ?
		WHERE signoff_id = ? AND approved IS NULL`,
		approved, reason, reviewerID, at, signoffID)
	if err != nil {
		return fmt.Errorf("failed to record dispute review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read review result: %w", err)
	}
	if affected == 0 {
		return models.E(models.KindConflict, "dispute already reviewed")
	}
	return nil
}

func scanSignoff(row rowScanner) (*models.CitizenSignoff, error) {
	var s models.CitizenSignoff
	err := row.Scan(
		&s.SignoffID, &s.ComplaintID, &s.Cycle, &s.Accepted, &s.Disputed,
		&s.Rating, &s.DisputeReason, &s.CounterProofHandle, &s.Approved,
		&s.ReviewReason, &s.ReviewedBy, &s.ReviewedAt, &s.SignedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
