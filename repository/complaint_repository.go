package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jansunwai/models"
)

// complaintColumns is the canonical select list; keep in sync with scanComplaint.
const complaintColumns = `
	complaint_id, complaint_number, citizen_id, title, description, location_text,
	latitude, longitude, category_id, department_id, priority, ai_confidence,
	ai_reasoning, needs_manual_routing, current_state, assigned_staff_id,
	escalation_level, needs_manual_attention, resolution_cycle, sla_days,
	sla_deadline, started_at, resolved_at, closed_at, intake_image_handle,
	intake_image_analysis, upvote_count, citizen_satisfaction, row_version,
	created_at, updated_at`

// ComplaintRepository handles database operations for complaints
type ComplaintRepository struct {
	db *sql.DB
}

// NewComplaintRepository creates a new complaint repository
func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanComplaint(row rowScanner) (*models.Complaint, error) {
	var c models.Complaint
	var level int
	err := row.Scan(
		&c.ComplaintID, &c.ComplaintNumber, &c.CitizenID, &c.Title, &c.Description,
		&c.LocationText, &c.Latitude, &c.Longitude, &c.CategoryID, &c.DepartmentID,
		&c.Priority, &c.AIConfidence, &c.AIReasoning, &c.NeedsManualRouting,
		&c.CurrentState, &c.AssignedStaffID, &level, &c.NeedsManualAttention,
		&c.ResolutionCycle, &c.SLADays, &c.SLADeadline, &c.StartedAt, &c.ResolvedAt,
		&c.ClosedAt, &c.IntakeImageHandle, &c.IntakeImageAnalysis, &c.UpvoteCount,
		&c.CitizenSatisfaction, &c.RowVersion, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.EscalationLevel = models.EscalationLevel(level)
	return &c, nil
}

// NextComplaintNumber allocates the next display number for the given year.
// Format: GRV-<yyyy>-<5-digit zero-padded sequence>.
func (r *ComplaintRepository) NextComplaintNumber(ctx context.Context, now time.Time) (string, error) {
	year := now.UTC().Year()
	// LAST_INSERT_ID wraps the seq on both the insert and the update path, so
	// the returned id is authoritative even for the first filing of a year.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO complaint_sequences (year, seq) VALUES (?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)`, year)
	if err != nil {
		return "", fmt.Errorf("failed to advance complaint sequence: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read complaint sequence: %w", err)
	}
	return fmt.Sprintf("GRV-%d-%05d", year, seq), nil
}

// InsertComplaint persists a new complaint and its CREATED audit entry in one
// transaction. The complaint's id and row version are filled in on success.
func (r *ComplaintRepository) InsertComplaint(ctx context.Context, c *models.Complaint, audit *models.AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO complaints (
			complaint_number, citizen_id, title, description, location_text,
			latitude, longitude, category_id, department_id, priority,
			ai_confidence, ai_reasoning, needs_manual_routing, current_state,
			assigned_staff_id, escalation_level, needs_manual_attention,
			resolution_cycle, sla_days, sla_deadline, intake_image_handle,
			intake_image_analysis, upvote_count, row_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		c.ComplaintNumber, c.CitizenID, c.Title, c.Description, c.LocationText,
		c.Latitude, c.Longitude, c.CategoryID, c.DepartmentID, c.Priority,
		c.AIConfidence, c.AIReasoning, c.NeedsManualRouting, c.CurrentState,
		c.AssignedStaffID, int(c.EscalationLevel), c.NeedsManualAttention,
		c.ResolutionCycle, c.SLADays, c.SLADeadline, c.IntakeImageHandle,
		c.IntakeImageAnalysis, c.UpvoteCount, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert complaint: %w", err)
	}
	complaintID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get complaint id: %w", err)
	}
	c.ComplaintID = complaintID
	c.RowVersion = 1

	audit.EntityID = complaintID
	audit.CreatedAt = c.CreatedAt
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit complaint insert: %w", err)
	}
	return nil
}

// GetComplaint retrieves a complaint by its internal id.
func (r *ComplaintRepository) GetComplaint(ctx context.Context, complaintID int64) (*models.Complaint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+complaintColumns+` FROM complaints WHERE complaint_id = ?`, complaintID)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, models.Ef(models.KindNotFound, "complaint %d not found", complaintID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return c, nil
}

// GetComplaintByNumber retrieves a complaint by its display number.
func (r *ComplaintRepository) GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+complaintColumns+` FROM complaints WHERE complaint_number = ?`, number)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, models.Ef(models.KindNotFound, "complaint %s not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return c, nil
}

// ApplyStateChange writes every mutable complaint column from c, bumps the row
// version with a compare-and-swap on expectedVersion, and appends the audit
// entry (plus optional escalation event) in the same transaction. A lost CAS
// returns models.ErrTransitionConflict and writes nothing.
func (r *ComplaintRepository) ApplyStateChange(
	ctx context.Context,
	c *models.Complaint,
	expectedVersion int64,
	audit *models.AuditEntry,
	escalation *models.EscalationEvent,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE complaints SET
			category_id = ?, department_id = ?, priority = ?,
			needs_manual_routing = ?, current_state = ?, assigned_staff_id = ?,
			escalation_level = ?, needs_manual_attention = ?, resolution_cycle = ?,
			sla_days = ?, sla_deadline = ?, started_at = ?, resolved_at = ?,
			closed_at = ?, citizen_satisfaction = ?,
			row_version = row_version + 1, updated_at = ?
		WHERE complaint_id = ? AND row_version = ?`,
		c.CategoryID, c.DepartmentID, c.Priority,
		c.NeedsManualRouting, c.CurrentState, c.AssignedStaffID,
		int(c.EscalationLevel), c.NeedsManualAttention, c.ResolutionCycle,
		c.SLADays, c.SLADeadline, c.StartedAt, c.ResolvedAt,
		c.ClosedAt, c.CitizenSatisfaction, audit.CreatedAt,
		c.ComplaintID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update complaint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrTransitionConflict
	}
	c.RowVersion = expectedVersion + 1

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}

	if escalation != nil {
		if err := insertEscalationTx(ctx, tx, escalation); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state change: %w", err)
	}
	return nil
}

// ListByCitizen retrieves a citizen's complaints, newest first.
func (r *ComplaintRepository) ListByCitizen(ctx context.Context, citizenID int64) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints WHERE citizen_id = ? ORDER BY created_at DESC`,
		citizenID)
}

// ListByDepartment retrieves a department's non-terminal complaints.
func (r *ComplaintRepository) ListByDepartment(ctx context.Context, departmentID int64) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints
		 WHERE department_id = ? AND current_state NOT IN (?, ?)
		 ORDER BY sla_deadline ASC, complaint_id ASC`,
		departmentID, models.StateClosed, models.StateCancelled)
}

// ListByStaff retrieves a staff member's assigned open complaints.
func (r *ComplaintRepository) ListByStaff(ctx context.Context, staffID int64) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints
		 WHERE assigned_staff_id = ? AND current_state NOT IN (?, ?)
		 ORDER BY sla_deadline ASC, complaint_id ASC`,
		staffID, models.StateClosed, models.StateCancelled)
}

// ListPendingRouting retrieves complaints awaiting admin routing.
func (r *ComplaintRepository) ListPendingRouting(ctx context.Context) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints
		 WHERE needs_manual_routing = TRUE AND current_state NOT IN (?, ?)
		 ORDER BY created_at ASC`,
		models.StateClosed, models.StateCancelled)
}

// CountPendingRouting returns the routing backlog size.
func (r *ComplaintRepository) CountPendingRouting(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM complaints
		WHERE needs_manual_routing = TRUE AND current_state NOT IN (?, ?)`,
		models.StateClosed, models.StateCancelled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending routing: %w", err)
	}
	return count, nil
}

// EscalationCandidates selects overdue non-terminal complaints for one
// scheduler tick, in deterministic order: escalation level ascending, then
// deadline ascending, then complaint id ascending.
func (r *ComplaintRepository) EscalationCandidates(ctx context.Context, now time.Time) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints
		 WHERE current_state IN (?, ?, ?)
		   AND needs_manual_attention = FALSE
		   AND sla_deadline IS NOT NULL AND sla_deadline < ?
		 ORDER BY escalation_level ASC, sla_deadline ASC, complaint_id ASC`,
		models.StateFiled, models.StateInProgress, models.StateHold, now)
}

// AutoCloseCandidates selects complaints resolved before the cutoff with no
// citizen action, for the SYSTEM auto-close sweep.
func (r *ComplaintRepository) AutoCloseCandidates(ctx context.Context, cutoff time.Time) ([]models.Complaint, error) {
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints c
		 WHERE c.current_state = ?
		   AND c.resolved_at IS NOT NULL AND c.resolved_at < ?
		   AND NOT EXISTS (
		       SELECT 1 FROM citizen_signoffs s
		       WHERE s.complaint_id = c.complaint_id AND s.cycle = c.resolution_cycle
		   )
		 ORDER BY c.resolved_at ASC, c.complaint_id ASC`,
		models.StateResolved, cutoff)
}

// SetNeedsManualAttention tags a complaint the scheduler gave up on and
// appends the SUSPENSION audit entry.
func (r *ComplaintRepository) SetNeedsManualAttention(ctx context.Context, complaintID int64, reason string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE complaints SET needs_manual_attention = TRUE, updated_at = ?
		WHERE complaint_id = ?`, at, complaintID); err != nil {
		return fmt.Errorf("failed to flag complaint: %w", err)
	}

	audit := models.NewAuditEntry(complaintID, models.AuditSuspension, models.SystemActor, "", "", reason)
	audit.CreatedAt = at
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit suspension: %w", err)
	}
	return nil
}

// Upvote records one citizen upvote. Uniqueness per (complaint, citizen) is
// enforced at write time; a duplicate is a no-op and returns false.
func (r *ComplaintRepository) Upvote(ctx context.Context, complaintID, citizenID int64, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO complaint_upvotes (complaint_id, citizen_id, created_at)
		VALUES (?, ?, ?)`, complaintID, citizenID, at)
	if err != nil {
		return false, fmt.Errorf("failed to record upvote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upvote result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE complaints SET upvote_count = upvote_count + 1 WHERE complaint_id = ?`,
		complaintID); err != nil {
		return false, fmt.Errorf("failed to bump upvote count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit upvote: %w", err)
	}
	return true, nil
}

// FindNearby returns complaints filed within radiusKm of (lat, lon) since the
// window start, straight-line distance. Used for duplicate detection.
func (r *ComplaintRepository) FindNearby(ctx context.Context, lat, lon, radiusKm float64, since time.Time) ([]models.Complaint, error) {
	// Haversine over a coarse bounding box; fine for duplicate hints.
	return r.list(ctx,
		`SELECT`+complaintColumns+` FROM complaints
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		   AND created_at >= ?
		   AND (6371 * ACOS(LEAST(1.0,
		       COS(RADIANS(?)) * COS(RADIANS(latitude)) *
		       COS(RADIANS(longitude) - RADIANS(?)) +
		       SIN(RADIANS(?)) * SIN(RADIANS(latitude))))) <= ?
		 ORDER BY created_at DESC`,
		since, lat, lon, lat, radiusKm)
}

func (r *ComplaintRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Complaint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query complaints: %w", err)
	}
	defer rows.Close()

	var complaints []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan complaint: %w", err)
		}
		complaints = append(complaints, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complaints: %w", err)
	}
	return complaints, nil
}
