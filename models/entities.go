package models

import (
	"database/sql"
	"time"
)

// ComplaintState represents the lifecycle state of a complaint
type ComplaintState string

const (
	StateFiled      ComplaintState = "filed"
	StateInProgress ComplaintState = "in_progress"
	StateResolved   ComplaintState = "resolved"
	StateClosed     ComplaintState = "closed"
	StateCancelled  ComplaintState = "cancelled"
	StateHold       ComplaintState = "hold"
)

// IsTerminal reports whether no further transitions are legal from this state.
func (s ComplaintState) IsTerminal() bool {
	return s == StateClosed || s == StateCancelled
}

// Priority represents complaint priority levels
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Bump raises the priority one step, capped at critical.
func (p Priority) Bump() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh, PriorityCritical:
		return PriorityCritical
	default:
		return p
	}
}

// ValidPriority reports whether s is a known priority value.
func ValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Role represents the caller's role as carried in identity claims
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleStaff      Role = "staff"
	RoleDeptHead   Role = "dept_head"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	// RoleSystem is the pseudo-role for scheduler-driven transitions.
	RoleSystem Role = "system"
)

// ActorKind distinguishes human actions from scheduler actions in the audit log
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// Actor identifies who is performing an operation.
type Actor struct {
	UserID       int64
	Role         Role
	DepartmentID int64 // 0 when the role carries no department
}

// SystemActor is the scheduler identity used for SLA escalations and auto-close.
var SystemActor = Actor{UserID: 0, Role: RoleSystem}

// EscalationLevel is the organizational tier an overdue complaint is surfaced to
type EscalationLevel int

const (
	EscalationNone EscalationLevel = iota
	EscalationStaff
	EscalationDeptHead
	EscalationAdmin
	EscalationCommissioner
)

func (l EscalationLevel) String() string {
	switch l {
	case EscalationNone:
		return "none"
	case EscalationStaff:
		return "staff"
	case EscalationDeptHead:
		return "dept_head"
	case EscalationAdmin:
		return "admin"
	case EscalationCommissioner:
		return "commissioner"
	default:
		return "unknown"
	}
}

// NotifiedRole returns the role an escalation to this level surfaces the
// complaint to.
func (l EscalationLevel) NotifiedRole() Role {
	switch l {
	case EscalationStaff:
		return RoleStaff
	case EscalationDeptHead:
		return RoleDeptHead
	case EscalationAdmin:
		return RoleAdmin
	case EscalationCommissioner:
		return RoleSuperAdmin
	default:
		return RoleStaff
	}
}

// Complaint represents a complaint entity (the pivot of the system)
type Complaint struct {
	ComplaintID     int64           `db:"complaint_id" json:"complaint_id"`
	ComplaintNumber string          `db:"complaint_number" json:"complaint_number"`
	CitizenID       int64           `db:"citizen_id" json:"citizen_id"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	LocationText    string          `db:"location_text" json:"location_text"`
	Latitude        sql.NullFloat64 `db:"latitude" json:"latitude"`
	Longitude       sql.NullFloat64 `db:"longitude" json:"longitude"`

	// Classification (set at intake; admin routing may override)
	CategoryID         sql.NullInt64   `db:"category_id" json:"category_id"`
	DepartmentID       sql.NullInt64   `db:"department_id" json:"department_id"`
	Priority           Priority        `db:"priority" json:"priority"`
	AIConfidence       float64         `db:"ai_confidence" json:"ai_confidence"`
	AIReasoning        sql.NullString  `db:"ai_reasoning" json:"ai_reasoning"`
	NeedsManualRouting bool            `db:"needs_manual_routing" json:"needs_manual_routing"`

	// Lifecycle
	CurrentState         ComplaintState  `db:"current_state" json:"current_state"`
	AssignedStaffID      sql.NullInt64   `db:"assigned_staff_id" json:"assigned_staff_id"`
	EscalationLevel      EscalationLevel `db:"escalation_level" json:"escalation_level"`
	NeedsManualAttention bool            `db:"needs_manual_attention" json:"needs_manual_attention"`
	ResolutionCycle      int             `db:"resolution_cycle" json:"resolution_cycle"`

	// SLA
	SLADays     int          `db:"sla_days" json:"sla_days"`
	SLADeadline sql.NullTime `db:"sla_deadline" json:"sla_deadline"`
	StartedAt   sql.NullTime `db:"started_at" json:"started_at"`
	ResolvedAt  sql.NullTime `db:"resolved_at" json:"resolved_at"`
	ClosedAt    sql.NullTime `db:"closed_at" json:"closed_at"`

	// Evidence from intake
	IntakeImageHandle   sql.NullString `db:"intake_image_handle" json:"intake_image_handle"`
	IntakeImageAnalysis sql.NullString `db:"intake_image_analysis" json:"intake_image_analysis"`

	// Engagement
	UpvoteCount         int           `db:"upvote_count" json:"upvote_count"`
	CitizenSatisfaction sql.NullInt64 `db:"citizen_satisfaction" json:"citizen_satisfaction"`

	// Optimistic concurrency
	RowVersion int64 `db:"row_version" json:"-"`

	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at" json:"updated_at"`
}

// ResolutionProof is the mandatory evidence for the in_progress -> resolved gate.
// At most one active (non-archived) proof per resolution cycle.
type ResolutionProof struct {
	ProofID      int64           `db:"proof_id" json:"proof_id"`
	ComplaintID  int64           `db:"complaint_id" json:"complaint_id"`
	Cycle        int             `db:"cycle" json:"cycle"`
	ImageHandle  string          `db:"image_handle" json:"image_handle"`
	EvidenceHash string          `db:"evidence_hash" json:"evidence_hash"`
	CapturedAt   time.Time       `db:"captured_at" json:"captured_at"`
	Latitude     sql.NullFloat64 `db:"latitude" json:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude" json:"longitude"`
	StaffID      int64           `db:"staff_id" json:"staff_id"`
	Remarks      sql.NullString  `db:"remarks" json:"remarks"`
	Verified     bool            `db:"verified" json:"verified"`
	Archived     bool            `db:"archived" json:"archived"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// CitizenSignoff records the citizen's accept-or-dispute decision on a claimed
// resolution. A dispute is pending while Approved is NULL.
type CitizenSignoff struct {
	SignoffID          int64          `db:"signoff_id" json:"signoff_id"`
	ComplaintID        int64          `db:"complaint_id" json:"complaint_id"`
	Cycle              int            `db:"cycle" json:"cycle"`
	Accepted           bool           `db:"accepted" json:"accepted"`
	Disputed           bool           `db:"disputed" json:"disputed"`
	Rating             sql.NullInt64  `db:"rating" json:"rating"`
	DisputeReason      sql.NullString `db:"dispute_reason" json:"dispute_reason"`
	CounterProofHandle sql.NullString `db:"counter_proof_handle" json:"counter_proof_handle"`
	Approved           sql.NullBool   `db:"approved" json:"approved"`
	ReviewReason       sql.NullString `db:"review_reason" json:"review_reason"`
	ReviewedBy         sql.NullInt64  `db:"reviewed_by" json:"reviewed_by"`
	ReviewedAt         sql.NullTime   `db:"reviewed_at" json:"reviewed_at"`
	SignedAt           time.Time      `db:"signed_at" json:"signed_at"`
}

// PendingDispute reports whether this signoff is a dispute awaiting review.
func (s *CitizenSignoff) PendingDispute() bool {
	return s.Disputed && !s.Approved.Valid
}

// AuditAction enumerates the actions recorded in the audit log
type AuditAction string

const (
	AuditCreated     AuditAction = "created"
	AuditStateChange AuditAction = "state_change"
	AuditEscalation  AuditAction = "escalation"
	AuditAssignment  AuditAction = "assignment"
	AuditSLAUpdate   AuditAction = "sla_update"
	AuditComment     AuditAction = "comment"
	AuditSuspension  AuditAction = "suspension"
	AuditRouting     AuditAction = "routing"
)

// ValidAuditAction reports whether s names a known audit action.
func ValidAuditAction(s string) bool {
	switch AuditAction(s) {
	case AuditCreated, AuditStateChange, AuditEscalation, AuditAssignment,
		AuditSLAUpdate, AuditComment, AuditSuspension, AuditRouting:
		return true
	}
	return false
}

// AuditEntry is an append-only ledger row. Never updated, never deleted.
type AuditEntry struct {
	AuditID    int64          `db:"audit_id" json:"audit_id"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	EntityID   int64          `db:"entity_id" json:"entity_id"`
	Action     AuditAction    `db:"action" json:"action"`
	OldValue   sql.NullString `db:"old_value" json:"old_value"`
	NewValue   sql.NullString `db:"new_value" json:"new_value"`
	ActorKind  ActorKind      `db:"actor_kind" json:"actor_kind"`
	ActorID    sql.NullInt64  `db:"actor_id" json:"actor_id"`
	ActorRole  sql.NullString `db:"actor_role" json:"actor_role"`
	Reason     sql.NullString `db:"reason" json:"reason"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// NewAuditEntry builds a complaint audit row for the given actor.
func NewAuditEntry(complaintID int64, action AuditAction, actor Actor, oldValue, newValue, reason string) *AuditEntry {
	e := &AuditEntry{
		EntityType: "complaint",
		EntityID:   complaintID,
		Action:     action,
	}
	if actor.Role == RoleSystem {
		e.ActorKind = ActorSystem
	} else {
		e.ActorKind = ActorUser
		e.ActorID = sql.NullInt64{Int64: actor.UserID, Valid: true}
	}
	e.ActorRole = sql.NullString{String: string(actor.Role), Valid: actor.Role != ""}
	e.OldValue = sql.NullString{String: oldValue, Valid: oldValue != ""}
	e.NewValue = sql.NullString{String: newValue, Valid: newValue != ""}
	e.Reason = sql.NullString{String: reason, Valid: reason != ""}
	return e
}

// Category is read-only reference data owned by an external editor.
type Category struct {
	CategoryID          int64  `db:"category_id" json:"category_id"`
	Name                string `db:"name" json:"name"`
	Keywords            string `db:"keywords" json:"keywords"` // comma-separated match hints
	DefaultDepartmentID int64  `db:"default_department_id" json:"default_department_id"`
}

// Department is read-only reference data owned by an external editor.
type Department struct {
	DepartmentID int64  `db:"department_id" json:"department_id"`
	Name         string `db:"name" json:"name"`
	HeadUserID   int64  `db:"head_user_id" json:"head_user_id"`
}

// SLARule maps (department, priority) to the committed resolution window.
type SLARule struct {
	DepartmentID int64    `db:"department_id"`
	Priority     Priority `db:"priority"`
	SLADays      int      `db:"sla_days"`
}

// StaffAccount is a staff/admin login record (credential seam only; token
// verification is the contract the core consumes).
type StaffAccount struct {
	UserID       int64          `db:"user_id" json:"user_id"`
	Name         string         `db:"name" json:"name"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Role         Role           `db:"role" json:"role"`
	DepartmentID sql.NullInt64  `db:"department_id" json:"department_id"`
	Active       bool           `db:"active" json:"active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at" json:"updated_at"`
}
