package repository

import (
	"context"
	"database/sql"
	"fmt"

	"jansunwai/models"
)

// ProofRepository handles resolution-proof persistence. At most one active
// (non-archived) proof exists per resolution cycle.
type ProofRepository struct {
	db *sql.DB
}

// NewProofRepository creates a new proof repository
func NewProofRepository(db *sql.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

const proofColumns = `
	proof_id, complaint_id, cycle, image_handle, evidence_hash, captured_at,
	latitude, longitude, staff_id, remarks, verified, archived, created_at`

// Insert persists a new proof.
func (r *ProofRepository) Insert(ctx context.Context, p *models.ResolutionProof) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO resolution_proofs (
			complaint_id, cycle, image_handle, evidence_hash, captured_at,
			latitude, longitude, staff_id, remarks, verified, archived, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
		p.ComplaintID, p.Cycle, p.ImageHandle, p.EvidenceHash, p.CapturedAt,
		p.Latitude, p.Longitude, p.StaffID, p.Remarks, p.Verified, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proof: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get proof id: %w", err)
	}
	p.ProofID = id
	return nil
}

// ActiveForCycle returns the active proof for a complaint's resolution cycle,
// or nil when none exists (the resolve gate checks this).
func (r *ProofRepository) ActiveForCycle(ctx context.Context, complaintID int64, cycle int) (*models.ResolutionProof, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+proofColumns+` FROM resolution_proofs
		WHERE complaint_id = ? AND cycle = ? AND archived = FALSE
		ORDER BY created_at DESC LIMIT 1`, complaintID, cycle)
	p, err := scanProof(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active proof: %w", err)
	}
	return p, nil
}

// ByComplaint returns all proofs for a complaint, newest first.
func (r *ProofRepository) ByComplaint(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+proofColumns+` FROM resolution_proofs
		WHERE complaint_id = ? ORDER BY created_at DESC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query proofs: %w", err)
	}
	defer rows.Close()

	var proofs []models.ResolutionProof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proof: %w", err)
		}
		proofs = append(proofs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proofs: %w", err)
	}
	return proofs, nil
}

// ArchiveCycle archives every proof of a resolution cycle. Called when an
// approved dispute opens a new cycle.
func (r *ProofRepository) ArchiveCycle(ctx context.Context, complaintID int64, cycle int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE resolution_proofs SET archived = TRUE
		WHERE complaint_id = ? AND cycle = ?`, complaintID, cycle)
	if err != nil {
		return fmt.Errorf("failed to archive proofs: %w", err)
	}
	return nil
}

func scanProof(row rowScanner) (*models.ResolutionProof, error) {
	var p models.ResolutionProof
	err := row.Scan(
		&p.ProofID, &p.ComplaintID, &p.Cycle, &p.ImageHandle, &p.EvidenceHash,
		&p.CapturedAt, &p.Latitude, &p.Longitude, &p.StaffID, &p.Remarks,
		&p.Verified, &p.Archived, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
