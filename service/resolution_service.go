package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"jansunwai/models"
	"jansunwai/utils"
)

// ResolutionService owns the proof / sign-off / dispute subsystem layered on
// the resolved half of the lifecycle.
type ResolutionService struct {
	complaints ComplaintStore
	proofs     ProofStore
	signoffs   SignoffStore
	audits     AuditStore
	lifecycle  *LifecycleService
	events     EventEmitter
	clock      utils.Clock

	disputeSLAFactor float64
}

// NewResolutionService wires the resolution subsystem.
func NewResolutionService(
	complaints ComplaintStore,
	proofs ProofStore,
	signoffs SignoffStore,
	audits AuditStore,
	lifecycle *LifecycleService,
	events EventEmitter,
	clock utils.Clock,
	disputeSLAFactor float64,
) *ResolutionService {
	return &ResolutionService{
		complaints:       complaints,
		proofs:           proofs,
		signoffs:         signoffs,
		audits:           audits,
		lifecycle:        lifecycle,
		events:           events,
		clock:            clock,
		disputeSLAFactor: disputeSLAFactor,
	}
}

// UploadProof attaches resolution evidence for the current cycle. Re-uploading
// archives the earlier proof; only one stays active per cycle.
func (s *ResolutionService) UploadProof(ctx context.Context, actor models.Actor, complaintID int64, req *models.UploadProofRequest) (*models.ResolutionProof, error) {
	if actor.Role != models.RoleStaff && actor.Role != models.RoleDeptHead {
		return nil, models.E(models.KindForbidden, "only field staff upload resolution proofs")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.CurrentState != models.StateInProgress {
		return nil, models.Ef(models.KindInvalidStateTransition,
			"proof can only be uploaded while complaint %s is in progress", c.ComplaintNumber)
	}
	if err := s.lifecycle.checkOwnership(actor, c); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	existing, err := s.proofs.ActiveForCycle(ctx, complaintID, c.ResolutionCycle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.proofs.ArchiveCycle(ctx, complaintID, c.ResolutionCycle); err != nil {
			return nil, err
		}
	}

	var lat, lon float64
	proof := &models.ResolutionProof{
		ComplaintID: complaintID,
		Cycle:       c.ResolutionCycle,
		ImageHandle: req.ImageHandle,
		CapturedAt:  now,
		StaffID:     actor.UserID,
		CreatedAt:   now,
	}
	if req.Latitude != nil && req.Longitude != nil {
		lat, lon = *req.Latitude, *req.Longitude
		proof.Latitude = sql.NullFloat64{Float64: lat, Valid: true}
		proof.Longitude = sql.NullFloat64{Float64: lon, Valid: true}
	}
	if req.Remarks != "" {
		proof.Remarks = sql.NullString{String: req.Remarks, Valid: true}
	}
	proof.EvidenceHash = utils.GenerateEvidenceHash([]byte(req.ImageHandle), lat, lon, now)

	if err := s.proofs.Insert(ctx, proof); err != nil {
		return nil, err
	}

	audit := models.NewAuditEntry(complaintID, models.AuditComment, actor,
		"", proof.ImageHandle, "proof_uploaded")
	audit.CreatedAt = now
	if err := s.audits.Append(ctx, audit); err != nil {
		log.Printf("[RESOLUTION] Failed to append proof audit for complaint %d: %v", complaintID, err)
	}

	log.Printf("[RESOLUTION] Proof uploaded for complaint %s cycle %d by staff %d",
		c.ComplaintNumber, c.ResolutionCycle, actor.UserID)
	return proof, nil
}

// ProofsFor lists a complaint's proofs (newest first).
func (s *ResolutionService) ProofsFor(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	return s.proofs.ByComplaint(ctx, complaintID)
}

// SubmitSignoff records the citizen's accept-or-dispute decision on a claimed
// resolution. Acceptance closes the complaint; a dispute parks it pending
// department-head review.
func (s *ResolutionService) SubmitSignoff(ctx context.Context, actor models.Actor, complaintID int64, req *models.SignoffRequest) (*models.CitizenSignoff, error) {
	if actor.Role != models.RoleCitizen {
		return nil, models.E(models.KindForbidden, "only the citizen signs off a resolution")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.CitizenID != actor.UserID {
		return nil, models.E(models.KindForbidden, "complaint belongs to another citizen")
	}
	if c.CurrentState != models.StateResolved {
		return nil, models.Ef(models.KindInvalidStateTransition,
			"complaint %s has no claimed resolution to sign off", c.ComplaintNumber)
	}

	existing, err := s.signoffs.ForCycle(ctx, complaintID, c.ResolutionCycle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.E(models.KindConflict, "this resolution has already been signed off")
	}

	now := s.clock.Now()
	signoff := &models.CitizenSignoff{
		ComplaintID: complaintID,
		Cycle:       c.ResolutionCycle,
		Accepted:    req.Accepted,
		Disputed:    req.Disputed,
		SignedAt:    now,
	}
	if req.Rating != nil {
		signoff.Rating = sql.NullInt64{Int64: int64(*req.Rating), Valid: true}
	}
	if req.Disputed {
		signoff.DisputeReason = sql.NullString{String: req.DisputeReason, Valid: true}
		if req.CounterProofHandle != nil {
			signoff.CounterProofHandle = sql.NullString{String: *req.CounterProofHandle, Valid: true}
		}
	}
	if err := s.signoffs.Insert(ctx, signoff); err != nil {
		return nil, err
	}

	if req.Accepted {
		if err := s.closeOnAcceptance(ctx, actor, c, signoff); err != nil {
			return nil, err
		}
		return signoff, nil
	}

	// Dispute: the complaint stays resolved while the review is pending.
	audit := models.NewAuditEntry(complaintID, models.AuditComment, actor,
		"", "", "sign_off_disputed")
	audit.CreatedAt = now
	if err := s.audits.Append(ctx, audit); err != nil {
		log.Printf("[RESOLUTION] Failed to append dispute audit for complaint %d: %v", complaintID, err)
	}

	log.Printf("[RESOLUTION] Complaint %s disputed by citizen %d: %s", c.ComplaintNumber, actor.UserID, req.DisputeReason)
	s.events.Emit(ctx, Event{
		ComplaintID:     complaintID,
		ComplaintNumber: c.ComplaintNumber,
		Kind:            EventDisputeFiled,
		RecipientRole:   models.RoleDeptHead,
		Message:         fmt.Sprintf("Resolution of complaint %s disputed: %s", c.ComplaintNumber, req.DisputeReason),
	})
	return signoff, nil
}

// closeOnAcceptance moves an accepted complaint to closed, carrying the rating
// into citizen satisfaction.
func (s *ResolutionService) closeOnAcceptance(ctx context.Context, actor models.Actor, c *models.Complaint, signoff *models.CitizenSignoff) error {
	err := s.lifecycle.withRetry(ctx, func() error {
		fresh, err := s.complaints.GetComplaint(ctx, c.ComplaintID)
		if err != nil {
			return err
		}
		expected := fresh.RowVersion
		// The close rides the transition table like any other mutation; the
		// acceptance guard sees the sign-off inserted just before.
		audit, err := s.lifecycle.prepareTransition(ctx, actor, fresh, models.StateClosed,
			models.TransitionContext{Reason: "sign_off_accepted"})
		if err != nil {
			return err
		}
		fresh.CitizenSatisfaction = signoff.Rating
		return s.complaints.ApplyStateChange(ctx, fresh, expected, audit, nil)
	})
	if err != nil {
		return err
	}
	log.Printf("[RESOLUTION] Complaint %s closed on citizen acceptance", c.ComplaintNumber)
	return nil
}

// ReviewDispute records the department head's verdict on a pending dispute.
// Approval reopens the complaint into a new resolution cycle with a bumped
// priority and a tightened SLA; rejection leaves it resolved with the
// auto-close timer still running.
func (s *ResolutionService) ReviewDispute(ctx context.Context, actor models.Actor, complaintID, signoffID int64, req *models.ReviewDisputeRequest) (*models.Complaint, error) {
	if actor.Role != models.RoleDeptHead {
		return nil, models.E(models.KindForbidden, "only department heads review disputes")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if !c.DepartmentID.Valid || c.DepartmentID.Int64 != actor.DepartmentID {
		return nil, models.E(models.KindForbidden, "complaint belongs to another department")
	}

	signoff, err := s.signoffs.Get(ctx, signoffID)
	if err != nil {
		return nil, err
	}
	if signoff.ComplaintID != complaintID {
		return nil, models.E(models.KindInvalidInput, "sign-off does not belong to this complaint")
	}
	if !signoff.PendingDispute() {
		return nil, models.E(models.KindConflict, "sign-off is not a pending dispute")
	}

	now := s.clock.Now()
	if err := s.signoffs.RecordReview(ctx, signoffID, req.Approve, req.Reason, actor.UserID, now); err != nil {
		return nil, err
	}

	if !req.Approve {
		audit := models.NewAuditEntry(complaintID, models.AuditComment, actor,
			"", "", "dispute_rejected")
		audit.CreatedAt = now
		if err := s.audits.Append(ctx, audit); err != nil {
			log.Printf("[RESOLUTION] Failed to append rejection audit for complaint %d: %v", complaintID, err)
		}
		log.Printf("[RESOLUTION] Dispute on complaint %s rejected by user %d", c.ComplaintNumber, actor.UserID)
		s.events.Emit(ctx, Event{
			ComplaintID:     complaintID,
			ComplaintNumber: c.ComplaintNumber,
			Kind:            EventDisputeReviewed,
			CitizenID:       c.CitizenID,
			Message:         fmt.Sprintf("Your dispute on complaint %s was reviewed and not upheld: %s", c.ComplaintNumber, req.Reason),
		})
		return c, nil
	}

	reopened, err := s.reopen(ctx, actor, complaintID)
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, Event{
		ComplaintID:     complaintID,
		ComplaintNumber: reopened.ComplaintNumber,
		Kind:            EventDisputeReviewed,
		CitizenID:       reopened.CitizenID,
		Message:         fmt.Sprintf("Your dispute on complaint %s was upheld; work has been reopened", reopened.ComplaintNumber),
	})
	return reopened, nil
}

// reopen moves an approved-dispute complaint back to in_progress: next cycle,
// archived proofs, bumped priority, escalation ladder back to the bottom, and
// the SLA window scaled down from the original.
func (s *ResolutionService) reopen(ctx context.Context, actor models.Actor, complaintID int64) (*models.Complaint, error) {
	var out *models.Complaint
	err := s.lifecycle.withRetry(ctx, func() error {
		c, err := s.complaints.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		expected := c.RowVersion
		oldCycle := c.ResolutionCycle
		oldDeadline := c.SLADeadline

		// The approved-dispute guard reads the sign-off of the cycle being
		// reopened, so the table transition is prepared before the cycle bumps.
		audit, err := s.lifecycle.prepareTransition(ctx, actor, c, models.StateInProgress,
			models.TransitionContext{Reason: models.ReasonDisputeApproved})
		if err != nil {
			return err
		}
		now := audit.CreatedAt

		c.ResolutionCycle = oldCycle + 1
		c.Priority = c.Priority.Bump()
		// A fresh cycle restarts the escalation ladder from the bottom.
		c.EscalationLevel = models.EscalationNone

		days := int(math.Ceil(float64(c.SLADays) * s.disputeSLAFactor))
		if days < 1 {
			days = 1
		}
		c.SLADeadline = sql.NullTime{Time: now.Add(time.Duration(days) * 24 * time.Hour), Valid: true}
		c.SLADays = days

		if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, nil); err != nil {
			return err
		}

		slaAudit := models.NewAuditEntry(c.ComplaintID, models.AuditSLAUpdate, actor,
			formatDeadline(oldDeadline), formatDeadline(c.SLADeadline), "dispute reopen tightened the deadline")
		slaAudit.CreatedAt = now
		if err := s.audits.Append(ctx, slaAudit); err != nil {
			log.Printf("[RESOLUTION] Failed to append SLA update audit for complaint %d: %v", complaintID, err)
		}

		if err := s.proofs.ArchiveCycle(ctx, complaintID, oldCycle); err != nil {
			log.Printf("[RESOLUTION] Failed to archive proofs of complaint %d cycle %d: %v", complaintID, oldCycle, err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[RESOLUTION] Complaint %s reopened into cycle %d (sla=%dd)", out.ComplaintNumber, out.ResolutionCycle, out.SLADays)
	return out, nil
}

// SignoffFor returns the signoff of the complaint's current cycle, or nil.
func (s *ResolutionService) SignoffFor(ctx context.Context, complaintID int64) (*models.CitizenSignoff, error) {
	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	return s.signoffs.ForCycle(ctx, complaintID, c.ResolutionCycle)
}
