package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jansunwai/classifier"
	"jansunwai/metrics"
	"jansunwai/models"
	"jansunwai/utils"
)

// maxTransitionRetries bounds reloads after a lost row-version race before the
// conflict surfaces to the caller.
const maxTransitionRetries = 3

// Duplicate hints cover complaints filed within this radius and window.
const (
	duplicateRadiusKm = 0.25
	duplicateWindow   = 72 * time.Hour
)

// LifecycleService owns complaint creation and every state transition. All
// mutations flow through the transition table and land with their audit entry
// in one transaction.
type LifecycleService struct {
	complaints ComplaintStore
	proofs     ProofStore
	signoffs   SignoffStore
	audits     AuditStore
	refs       ReferenceReader
	staff      StaffDirectory
	classifier classifier.Classifier
	events     EventEmitter
	clock      utils.Clock

	confidenceThreshold float64
	defaultSLADays      int
}

// NewLifecycleService wires the lifecycle engine.
func NewLifecycleService(
	complaints ComplaintStore,
	proofs ProofStore,
	signoffs SignoffStore,
	audits AuditStore,
	refs ReferenceReader,
	staff StaffDirectory,
	cls classifier.Classifier,
	events EventEmitter,
	clock utils.Clock,
	confidenceThreshold float64,
	defaultSLADays int,
) *LifecycleService {
	return &LifecycleService{
		complaints:          complaints,
		proofs:              proofs,
		signoffs:            signoffs,
		audits:              audits,
		refs:                refs,
		staff:               staff,
		classifier:          cls,
		events:              events,
		clock:               clock,
		confidenceThreshold: confidenceThreshold,
		defaultSLADays:      defaultSLADays,
	}
}

// CreateComplaint files a new complaint: classify, assign the SLA window,
// allocate the display number, persist with the CREATED audit entry.
func (s *LifecycleService) CreateComplaint(ctx context.Context, citizenID int64, req *models.CreateComplaintRequest, source string) (*models.Complaint, error) {
	if citizenID <= 0 {
		return nil, models.E(models.KindUnauthorized, "a citizen identity is required to file a complaint")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	c := &models.Complaint{
		CitizenID:       citizenID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		LocationText:    strings.TrimSpace(req.Location),
		CurrentState:    models.StateFiled,
		Priority:        models.PriorityMedium,
		ResolutionCycle: 1,
		CreatedAt:       now,
	}
	if req.Latitude != nil && req.Longitude != nil {
		c.Latitude = sql.NullFloat64{Float64: *req.Latitude, Valid: true}
		c.Longitude = sql.NullFloat64{Float64: *req.Longitude, Valid: true}
	}
	if req.ImageHandle != nil {
		c.IntakeImageHandle = sql.NullString{String: *req.ImageHandle, Valid: true}
	}
	if req.ImageAnalysis != nil {
		c.IntakeImageAnalysis = sql.NullString{String: *req.ImageAnalysis, Valid: true}
	}

	if err := s.classify(ctx, c); err != nil {
		return nil, err
	}

	slaDays := s.defaultSLADays
	if c.DepartmentID.Valid {
		days, err := s.refs.SLADays(ctx, c.DepartmentID.Int64, c.Priority, s.defaultSLADays)
		if err != nil {
			return nil, err
		}
		slaDays = days
	}
	c.SLADays = slaDays
	c.SLADeadline = sql.NullTime{Time: now.Add(time.Duration(slaDays) * 24 * time.Hour), Valid: true}

	number, err := s.complaints.NextComplaintNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	c.ComplaintNumber = number

	audit := models.NewAuditEntry(0, models.AuditCreated,
		models.Actor{UserID: citizenID, Role: models.RoleCitizen}, "", string(models.StateFiled), "")
	audit.CreatedAt = now

	if err := s.complaints.InsertComplaint(ctx, c, audit); err != nil {
		return nil, err
	}

	metrics.ComplaintsCreated.WithLabelValues(source).Inc()
	log.Printf("[LIFECYCLE] Complaint %s filed by citizen %d (dept=%v, manual_routing=%v)",
		c.ComplaintNumber, citizenID, c.DepartmentID.Int64, c.NeedsManualRouting)

	if c.Latitude.Valid && c.Longitude.Valid {
		if dups, derr := s.PossibleDuplicates(ctx, c.Latitude.Float64, c.Longitude.Float64, c.ComplaintID); derr != nil {
			log.Printf("[LIFECYCLE] Duplicate lookup failed for complaint %s: %v", c.ComplaintNumber, derr)
		} else if len(dups) > 0 {
			log.Printf("[LIFECYCLE] Complaint %s has %d possible duplicate(s) nearby", c.ComplaintNumber, len(dups))
		}
	}

	s.events.Emit(ctx, Event{
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		Kind:            EventComplaintFiled,
		RecipientRole:   models.RoleAdmin,
		CitizenID:       citizenID,
		Message:         fmt.Sprintf("Complaint %s filed: %s", c.ComplaintNumber, c.Title),
	})
	return c, nil
}

// classify runs the classifier and applies its verdict. Low confidence or a
// failed model lands the complaint in the manual routing queue.
func (s *LifecycleService) classify(ctx context.Context, c *models.Complaint) error {
	categories, err := s.refs.Categories(ctx)
	if err != nil {
		return err
	}
	departments, err := s.refs.Departments(ctx)
	if err != nil {
		return err
	}

	res := s.classifier.Classify(ctx, classifier.Input{
		Title:         c.Title,
		Description:   c.Description,
		Location:      c.LocationText,
		ImageAnalysis: c.IntakeImageAnalysis.String,
	}, classifier.Catalog{Categories: categories, Departments: departments})

	if models.ValidPriority(string(res.Priority)) {
		c.Priority = res.Priority
	}
	c.AIConfidence = res.Confidence
	if res.Reasoning != "" {
		c.AIReasoning = sql.NullString{String: res.Reasoning, Valid: true}
	}

	if res.Confidence >= s.confidenceThreshold && res.DepartmentID > 0 {
		c.CategoryID = sql.NullInt64{Int64: res.CategoryID, Valid: true}
		c.DepartmentID = sql.NullInt64{Int64: res.DepartmentID, Valid: true}
		return nil
	}
	c.NeedsManualRouting = true
	metrics.ClassifierFallbacks.Inc()
	return nil
}

// GetComplaint retrieves a complaint by internal id.
func (s *LifecycleService) GetComplaint(ctx context.Context, complaintID int64) (*models.Complaint, error) {
	return s.complaints.GetComplaint(ctx, complaintID)
}

// GetComplaintByNumber retrieves a complaint by its public display number.
func (s *LifecycleService) GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error) {
	return s.complaints.GetComplaintByNumber(ctx, number)
}

// History returns the complaint's latest audit entries.
func (s *LifecycleService) History(ctx context.Context, complaintID int64, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audits.ByEntity(ctx, "complaint", complaintID, limit)
}

// ApplyTransition validates and applies one state transition for the actor,
// retrying a bounded number of times when a concurrent writer wins the row.
func (s *LifecycleService) ApplyTransition(ctx context.Context, actor models.Actor, complaintID int64, target models.ComplaintState, tctx models.TransitionContext) (*models.Complaint, error) {
	var out *models.Complaint
	var from models.ComplaintState
	err := s.withRetry(ctx, func() error {
		c, err := s.complaints.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		expected := c.RowVersion
		from = c.CurrentState
		audit, err := s.prepareTransition(ctx, actor, c, target, tctx)
		if err != nil {
			return err
		}
		if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, nil); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Transitions.WithLabelValues(string(from), string(target)).Inc()
	s.notifyTransition(ctx, actor, out, target)
	return out, nil
}

// prepareTransition runs the rule lookup, role check, ownership check, and
// guard, then mutates c in place and returns the audit entry to persist.
func (s *LifecycleService) prepareTransition(ctx context.Context, actor models.Actor, c *models.Complaint, target models.ComplaintState, tctx models.TransitionContext) (*models.AuditEntry, error) {
	from := c.CurrentState
	rule := models.FindTransition(from, target)
	if rule == nil {
		return nil, models.InvalidTransition(c.ComplaintID, from, target)
	}
	if !rule.RoleAllowed(actor.Role) {
		return nil, models.Ef(models.KindForbidden,
			"role %s may not move complaint %s from %s to %s", actor.Role, c.ComplaintNumber, from, target)
	}
	if err := s.checkOwnership(actor, c); err != nil {
		return nil, err
	}
	if err := s.checkGuard(ctx, rule.Guard, actor, c, &tctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	applySideEffects(c, from, target, now)
	c.CurrentState = target

	audit := models.NewAuditEntry(c.ComplaintID, models.AuditStateChange, actor,
		string(from), string(target), tctx.Reason)
	audit.CreatedAt = now
	return audit, nil
}

// checkOwnership enforces the scoping rules layered on top of the role list:
// citizens act only on their own complaints, staff on their assignments,
// department heads within their department.
func (s *LifecycleService) checkOwnership(actor models.Actor, c *models.Complaint) error {
	switch actor.Role {
	case models.RoleCitizen:
		if c.CitizenID != actor.UserID {
			return models.E(models.KindForbidden, "complaint belongs to another citizen")
		}
	case models.RoleStaff:
		if !c.DepartmentID.Valid || c.DepartmentID.Int64 != actor.DepartmentID {
			return models.E(models.KindForbidden, "complaint belongs to another department")
		}
		if c.AssignedStaffID.Valid && c.AssignedStaffID.Int64 != actor.UserID {
			return models.E(models.KindForbidden, "complaint is assigned to another staff member")
		}
	case models.RoleDeptHead:
		if !c.DepartmentID.Valid || c.DepartmentID.Int64 != actor.DepartmentID {
			return models.E(models.KindForbidden, "complaint belongs to another department")
		}
	}
	return nil
}

// checkGuard evaluates the contextual requirement named by the rule. Guards
// may fill in c (assignment) from the transition context.
func (s *LifecycleService) checkGuard(ctx context.Context, guard models.TransitionGuard, actor models.Actor, c *models.Complaint, tctx *models.TransitionContext) error {
	switch guard {
	case models.GuardNone:
		return nil

	case models.GuardAssignmentExists:
		if tctx.AssigneeID != nil {
			return s.assign(ctx, c, *tctx.AssigneeID)
		}
		if c.AssignedStaffID.Valid {
			return nil
		}
		if actor.Role == models.RoleStaff {
			// Staff picking up unassigned work self-assigns.
			c.AssignedStaffID = sql.NullInt64{Int64: actor.UserID, Valid: true}
			return nil
		}
		return models.E(models.KindInvalidInput, "an assignee is required to start work")

	case models.GuardReasonRequired:
		if strings.TrimSpace(tctx.Reason) == "" {
			return models.E(models.KindInvalidInput, "a reason is required for this transition")
		}
		return nil

	case models.GuardProofRequired:
		proof, err := s.proofs.ActiveForCycle(ctx, c.ComplaintID, c.ResolutionCycle)
		if err != nil {
			return err
		}
		if proof == nil {
			return models.E(models.KindProofRequired, "resolution requires an uploaded proof for the current cycle")
		}
		return nil

	case models.GuardAcceptOrTimeout:
		if actor.Role == models.RoleSystem {
			// The sweep only selects complaints past the sign-off window.
			return nil
		}
		signoff, err := s.signoffs.ForCycle(ctx, c.ComplaintID, c.ResolutionCycle)
		if err != nil {
			return err
		}
		if signoff == nil || !signoff.Accepted {
			return models.E(models.KindInvalidStateTransition, "closing requires an accepted sign-off")
		}
		return nil

	case models.GuardApprovedDispute:
		signoff, err := s.signoffs.ForCycle(ctx, c.ComplaintID, c.ResolutionCycle)
		if err != nil {
			return err
		}
		if signoff == nil || !signoff.Disputed || !signoff.Approved.Valid || !signoff.Approved.Bool {
			return models.E(models.KindInvalidStateTransition, "reopening requires an approved dispute")
		}
		return nil
	}
	return models.Ef(models.KindInternal, "unknown transition guard %q", guard)
}

// assign validates and applies an explicit assignment from the transition
// context: the assignee must be an active staff member of the complaint's
// department.
func (s *LifecycleService) assign(ctx context.Context, c *models.Complaint, staffID int64) error {
	account, err := s.staff.GetStaff(ctx, staffID)
	if err != nil {
		return err
	}
	if !account.Active {
		return models.Ef(models.KindInvalidInput, "staff %d is inactive", staffID)
	}
	if !c.DepartmentID.Valid || !account.DepartmentID.Valid ||
		account.DepartmentID.Int64 != c.DepartmentID.Int64 {
		return models.E(models.KindInvalidInput, "assignee must belong to the complaint's department")
	}
	c.AssignedStaffID = sql.NullInt64{Int64: staffID, Valid: true}
	return nil
}

// applySideEffects stamps the lifecycle timestamps a transition implies.
func applySideEffects(c *models.Complaint, from, target models.ComplaintState, now time.Time) {
	switch target {
	case models.StateInProgress:
		if from == models.StateFiled && !c.StartedAt.Valid {
			c.StartedAt = sql.NullTime{Time: now, Valid: true}
		}
		if from == models.StateResolved {
			c.ResolvedAt = sql.NullTime{}
		}
	case models.StateResolved:
		c.ResolvedAt = sql.NullTime{Time: now, Valid: true}
	case models.StateClosed, models.StateCancelled:
		c.ClosedAt = sql.NullTime{Time: now, Valid: true}
	}
}

func (s *LifecycleService) notifyTransition(ctx context.Context, actor models.Actor, c *models.Complaint, target models.ComplaintState) {
	kind := EventStateChanged
	if target == models.StateResolved {
		kind = EventResolutionClaimed
	}
	s.events.Emit(ctx, Event{
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		Kind:            kind,
		CitizenID:       c.CitizenID,
		Message:         fmt.Sprintf("Complaint %s is now %s", c.ComplaintNumber, target),
	})
}

// AvailableTransitions returns the transitions the actor could attempt from
// the complaint's current state. Guards are not pre-evaluated; only the rule
// table and role list are consulted.
func (s *LifecycleService) AvailableTransitions(ctx context.Context, actor models.Actor, complaintID int64) ([]models.TransitionRule, error) {
	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	var rules []models.TransitionRule
	for _, r := range models.TransitionsFrom(c.CurrentState) {
		if r.RoleAllowed(actor.Role) && s.checkOwnership(actor, c) == nil {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// RouteManually assigns a department to a complaint in the manual routing
// queue and recomputes the SLA window anchored at the filing time.
func (s *LifecycleService) RouteManually(ctx context.Context, actor models.Actor, complaintID int64, req *models.RouteRequest) (*models.Complaint, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only admins route complaints")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dept, err := s.refs.Department(ctx, req.DepartmentID)
	if err != nil {
		return nil, err
	}

	var out *models.Complaint
	err = s.withRetry(ctx, func() error {
		c, err := s.complaints.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if c.CurrentState.IsTerminal() {
			return models.InvalidTransition(c.ComplaintID, c.CurrentState, c.CurrentState)
		}
		if !c.NeedsManualRouting {
			return models.E(models.KindConflict, "complaint is not awaiting routing")
		}
		expected := c.RowVersion
		now := s.clock.Now()

		oldDeadline := c.SLADeadline
		oldDept := ""
		if c.DepartmentID.Valid {
			oldDept = fmt.Sprintf("%d", c.DepartmentID.Int64)
		}
		c.DepartmentID = sql.NullInt64{Int64: dept.DepartmentID, Valid: true}
		c.NeedsManualRouting = false

		days, err := s.refs.SLADays(ctx, dept.DepartmentID, c.Priority, s.defaultSLADays)
		if err != nil {
			return err
		}
		c.SLADays = days
		// The SLA clock starts at filing, not at routing.
		c.SLADeadline = sql.NullTime{Time: c.CreatedAt.Add(time.Duration(days) * 24 * time.Hour), Valid: true}

		audit := models.NewAuditEntry(c.ComplaintID, models.AuditRouting, actor,
			oldDept, fmt.Sprintf("%d", dept.DepartmentID), req.Reason)
		audit.CreatedAt = now
		if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, nil); err != nil {
			return err
		}

		if !oldDeadline.Valid || !oldDeadline.Time.Equal(c.SLADeadline.Time) {
			slaAudit := models.NewAuditEntry(c.ComplaintID, models.AuditSLAUpdate, actor,
				formatDeadline(oldDeadline), formatDeadline(c.SLADeadline), "routing recomputed the deadline")
			slaAudit.CreatedAt = now
			if err := s.audits.Append(ctx, slaAudit); err != nil {
				log.Printf("[LIFECYCLE] Failed to append SLA update audit for complaint %d: %v", c.ComplaintID, err)
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LIFECYCLE] Complaint %s routed to department %d by user %d", out.ComplaintNumber, dept.DepartmentID, actor.UserID)
	return out, nil
}

// Reassign moves a complaint to another staff member in the same department.
func (s *LifecycleService) Reassign(ctx context.Context, actor models.Actor, complaintID int64, req *models.ReassignRequest) (*models.Complaint, error) {
	if actor.Role != models.RoleDeptHead && actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only department heads or admins reassign complaints")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out *models.Complaint
	err := s.withRetry(ctx, func() error {
		c, err := s.complaints.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if c.CurrentState.IsTerminal() {
			return models.E(models.KindInvalidStateTransition, "cannot reassign a closed complaint")
		}
		if actor.Role == models.RoleDeptHead {
			if err := s.checkOwnership(actor, c); err != nil {
				return err
			}
		}
		expected := c.RowVersion
		old := ""
		if c.AssignedStaffID.Valid {
			old = fmt.Sprintf("%d", c.AssignedStaffID.Int64)
		}
		if err := s.assign(ctx, c, req.StaffID); err != nil {
			return err
		}
		now := s.clock.Now()
		audit := models.NewAuditEntry(c.ComplaintID, models.AuditAssignment, actor,
			old, fmt.Sprintf("%d", req.StaffID), req.Reason)
		audit.CreatedAt = now
		if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, nil); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, Event{
		ComplaintID:     out.ComplaintID,
		ComplaintNumber: out.ComplaintNumber,
		Kind:            EventAssigned,
		RecipientUserID: req.StaffID,
		Message:         fmt.Sprintf("Complaint %s assigned to you", out.ComplaintNumber),
	})
	return out, nil
}

// Upvote records one citizen upvote; duplicates are a no-op.
func (s *LifecycleService) Upvote(ctx context.Context, citizenID, complaintID int64) (bool, error) {
	if citizenID <= 0 {
		return false, models.E(models.KindUnauthorized, "a citizen identity is required")
	}
	if _, err := s.complaints.GetComplaint(ctx, complaintID); err != nil {
		return false, err
	}
	return s.complaints.Upvote(ctx, complaintID, citizenID, s.clock.Now())
}

// MyComplaints lists the calling citizen's complaints.
func (s *LifecycleService) MyComplaints(ctx context.Context, actor models.Actor) ([]models.Complaint, error) {
	if actor.Role != models.RoleCitizen {
		return nil, models.E(models.KindForbidden, "only citizens have a personal complaint list")
	}
	return s.complaints.ListByCitizen(ctx, actor.UserID)
}

// DepartmentQueue lists the open complaints of the actor's department.
func (s *LifecycleService) DepartmentQueue(ctx context.Context, actor models.Actor) ([]models.Complaint, error) {
	switch actor.Role {
	case models.RoleStaff:
		return s.complaints.ListByStaff(ctx, actor.UserID)
	case models.RoleDeptHead:
		return s.complaints.ListByDepartment(ctx, actor.DepartmentID)
	default:
		return nil, models.E(models.KindForbidden, "no department queue for this role")
	}
}

// RoutingQueue lists complaints awaiting manual routing (admin only).
func (s *LifecycleService) RoutingQueue(ctx context.Context, actor models.Actor) ([]models.Complaint, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only admins see the routing queue")
	}
	return s.complaints.ListPendingRouting(ctx)
}

// RoutingBacklog returns the manual-routing queue size (admin only).
func (s *LifecycleService) RoutingBacklog(ctx context.Context, actor models.Actor) (int, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return 0, models.E(models.KindForbidden, "only admins see the routing queue")
	}
	return s.complaints.CountPendingRouting(ctx)
}

// PossibleDuplicates returns recent complaints filed near the given point,
// excluding excludeID. Duplicate hints never block filing; citizens who spot
// one can upvote instead.
func (s *LifecycleService) PossibleDuplicates(ctx context.Context, lat, lon float64, excludeID int64) ([]models.Complaint, error) {
	since := s.clock.Now().Add(-duplicateWindow)
	nearby, err := s.complaints.FindNearby(ctx, lat, lon, duplicateRadiusKm, since)
	if err != nil {
		return nil, err
	}
	out := nearby[:0]
	for _, c := range nearby {
		if c.ComplaintID == excludeID || c.CurrentState == models.StateCancelled {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// AuditByAction returns ledger entries of one action kind within a time range
// (admin only). A zero `to` means now.
func (s *LifecycleService) AuditByAction(ctx context.Context, actor models.Actor, action models.AuditAction, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only admins query the audit ledger")
	}
	if !models.ValidAuditAction(string(action)) {
		return nil, models.Ef(models.KindInvalidInput, "unknown audit action %q", action)
	}
	if to.IsZero() {
		to = s.clock.Now()
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audits.ByAction(ctx, action, from, to, limit)
}

// AuditByActor returns a user's ledger entries, newest first (admin only).
func (s *LifecycleService) AuditByActor(ctx context.Context, actor models.Actor, actorID int64, limit int) ([]models.AuditEntry, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only admins query the audit ledger")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audits.ByActor(ctx, actorID, limit)
}

// withRetry reloads and re-attempts op when a concurrent writer wins the row
// version, up to maxTransitionRetries with exponential backoff. Every other
// error is terminal.
func (s *LifecycleService) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, models.ErrTransitionConflict) {
			metrics.TransitionConflicts.Inc()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxTransitionRetries), ctx))
}

func formatDeadline(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(time.RFC3339)
}
