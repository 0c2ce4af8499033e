package service

import (
	"context"
	"time"

	"jansunwai/models"
)

// The service layer depends on narrow store contracts rather than concrete
// repositories. The repository package satisfies every interface below; tests
// swap in in-memory fakes.

// ComplaintStore is the persistence contract for complaints and their
// transactionally-coupled audit and escalation rows.
type ComplaintStore interface {
	NextComplaintNumber(ctx context.Context, now time.Time) (string, error)
	InsertComplaint(ctx context.Context, c *models.Complaint, audit *models.AuditEntry) error
	GetComplaint(ctx context.Context, complaintID int64) (*models.Complaint, error)
	GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error)
	ApplyStateChange(ctx context.Context, c *models.Complaint, expectedVersion int64, audit *models.AuditEntry, escalation *models.EscalationEvent) error
	ListByCitizen(ctx context.Context, citizenID int64) ([]models.Complaint, error)
	ListByDepartment(ctx context.Context, departmentID int64) ([]models.Complaint, error)
	ListByStaff(ctx context.Context, staffID int64) ([]models.Complaint, error)
	ListPendingRouting(ctx context.Context) ([]models.Complaint, error)
	CountPendingRouting(ctx context.Context) (int, error)
	FindNearby(ctx context.Context, lat, lon, radiusKm float64, since time.Time) ([]models.Complaint, error)
	EscalationCandidates(ctx context.Context, now time.Time) ([]models.Complaint, error)
	AutoCloseCandidates(ctx context.Context, cutoff time.Time) ([]models.Complaint, error)
	SetNeedsManualAttention(ctx context.Context, complaintID int64, reason string, at time.Time) error
	Upvote(ctx context.Context, complaintID, citizenID int64, at time.Time) (bool, error)
}

// ProofStore is the persistence contract for resolution proofs.
type ProofStore interface {
	Insert(ctx context.Context, p *models.ResolutionProof) error
	ActiveForCycle(ctx context.Context, complaintID int64, cycle int) (*models.ResolutionProof, error)
	ByComplaint(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error)
	ArchiveCycle(ctx context.Context, complaintID int64, cycle int) error
}

// SignoffStore is the persistence contract for citizen sign-offs.
type SignoffStore interface {
	Insert(ctx context.Context, s *models.CitizenSignoff) error
	Get(ctx context.Context, signoffID int64) (*models.CitizenSignoff, error)
	ForCycle(ctx context.Context, complaintID int64, cycle int) (*models.CitizenSignoff, error)
	RecordReview(ctx context.Context, signoffID int64, approved bool, reason string, reviewerID int64, at time.Time) error
}

// AuditStore appends and reads ledger entries outside the transactional path.
type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	ByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.AuditEntry, error)
	ByAction(ctx context.Context, action models.AuditAction, from, to time.Time, limit int) ([]models.AuditEntry, error)
	ByActor(ctx context.Context, actorID int64, limit int) ([]models.AuditEntry, error)
}

// ReferenceReader gives read access to categories, departments, and the SLA matrix.
type ReferenceReader interface {
	Category(ctx context.Context, categoryID int64) (*models.Category, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Department(ctx context.Context, departmentID int64) (*models.Department, error)
	Departments(ctx context.Context) ([]models.Department, error)
	SLADays(ctx context.Context, departmentID int64, priority models.Priority, defaultDays int) (int, error)
}

// StaffDirectory resolves staff accounts for assignment guards.
type StaffDirectory interface {
	GetStaff(ctx context.Context, userID int64) (*models.StaffAccount, error)
	ListStaffByDepartment(ctx context.Context, departmentID int64) ([]models.StaffAccount, error)
}

// SessionStore holds conversational intake sessions and the per-address
// message rate counter.
type SessionStore interface {
	Get(ctx context.Context, channel, address string) (*models.ConversationSession, error)
	Save(ctx context.Context, s *models.ConversationSession, ttl time.Duration) error
	Delete(ctx context.Context, channel, address string) error
	AllowMessage(ctx context.Context, channel, address string, limit int, window time.Duration) (bool, error)
}

// Event is an outbound notification: something happened on a complaint that a
// role or citizen should hear about. Delivery is best-effort and asynchronous.
type Event struct {
	ComplaintID     int64       `json:"complaint_id"`
	ComplaintNumber string      `json:"complaint_number"`
	Kind            string      `json:"kind"`
	RecipientRole   models.Role `json:"recipient_role,omitempty"`
	RecipientUserID int64       `json:"recipient_user_id,omitempty"`
	CitizenID       int64       `json:"citizen_id,omitempty"`
	Message         string      `json:"message"`
}

// Event kinds emitted by the services.
const (
	EventComplaintFiled    = "complaint_filed"
	EventStateChanged      = "state_changed"
	EventEscalated         = "escalated"
	EventAssigned          = "assigned"
	EventResolutionClaimed = "resolution_claimed"
	EventDisputeFiled      = "dispute_filed"
	EventDisputeReviewed   = "dispute_reviewed"
	EventAutoClosed        = "auto_closed"
)

// EventEmitter enqueues an event for delivery. Emit never fails the calling
// operation; implementations swallow and log their own errors.
type EventEmitter interface {
	Emit(ctx context.Context, e Event)
}

// NopEmitter discards events; used in tests and the sweep CLI.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
