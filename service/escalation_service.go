package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"jansunwai/metrics"
	"jansunwai/models"
	"jansunwai/utils"
)

// EscalationService is the SLA scheduler: each tick it walks the overdue
// complaints in deterministic order and advances each at most one escalation
// step. Ticks are idempotent; a complaint already at its ladder level is left
// alone.
type EscalationService struct {
	complaints ComplaintStore
	events     EventEmitter
	clock      utils.Clock

	ladder              models.EscalationLadder
	autoCloseDays       int
	maxFailures         int
	perComplaintTimeout time.Duration

	mu       sync.Mutex
	failures map[int64]int // consecutive per-complaint failures across ticks
}

// NewEscalationService wires the scheduler.
func NewEscalationService(
	complaints ComplaintStore,
	events EventEmitter,
	clock utils.Clock,
	ladder models.EscalationLadder,
	autoCloseDays int,
	maxFailures int,
	perComplaintTimeout time.Duration,
) *EscalationService {
	return &EscalationService{
		complaints:          complaints,
		events:              events,
		clock:               clock,
		ladder:              ladder,
		autoCloseDays:       autoCloseDays,
		maxFailures:         maxFailures,
		perComplaintTimeout: perComplaintTimeout,
		failures:            make(map[int64]int),
	}
}

// Tick processes one scheduler pass over the overdue complaints. A failing
// candidate never aborts the tick; after maxFailures consecutive failing
// ticks the complaint is flagged for manual attention and skipped until an
// operator clears it.
func (s *EscalationService) Tick(ctx context.Context) ([]models.EscalationResult, error) {
	now := s.clock.Now()
	candidates, err := s.complaints.EscalationCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation candidates: %w", err)
	}

	results := make([]models.EscalationResult, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		cctx, cancel := context.WithTimeout(ctx, s.perComplaintTimeout)
		result, err := s.processCandidate(cctx, c, now)
		cancel()

		if err != nil {
			if errors.Is(err, models.ErrTransitionConflict) {
				// A human won the row this tick; the next tick re-evaluates.
				log.Printf("[SCHEDULER] Complaint %d changed concurrently, skipping this tick", c.ComplaintID)
				continue
			}
			s.recordFailure(ctx, c.ComplaintID, err, now)
			continue
		}
		s.clearFailure(c.ComplaintID)
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

// processCandidate advances one overdue complaint a single step toward its
// ladder level and bumps its priority, all in one transaction with the
// ESCALATION audit entry and the escalation event row.
func (s *EscalationService) processCandidate(ctx context.Context, c *models.Complaint, now time.Time) (*models.EscalationResult, error) {
	if !c.SLADeadline.Valid {
		return nil, nil
	}
	daysOverdue := now.Sub(c.SLADeadline.Time).Hours() / 24
	required := s.ladder.RequiredLevel(daysOverdue)
	if c.EscalationLevel >= required {
		return nil, nil
	}

	from := c.EscalationLevel
	to := from + 1 // one step per tick, even when several thresholds passed
	reason := models.ReasonSLABreach
	if from > models.EscalationNone {
		reason = models.ReasonLevelTimerElapsed
	}

	expected := c.RowVersion
	c.EscalationLevel = to
	c.Priority = c.Priority.Bump()

	audit := models.NewAuditEntry(c.ComplaintID, models.AuditEscalation, models.SystemActor,
		from.String(), to.String(), reason)
	audit.CreatedAt = now

	event := &models.EscalationEvent{
		ComplaintID:  c.ComplaintID,
		FromLevel:    from,
		ToLevel:      to,
		TriggeredAt:  now,
		Reason:       reason,
		NotifiedRole: to.NotifiedRole(),
		CreatedAt:    now,
	}

	if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, event); err != nil {
		return nil, err
	}

	metrics.Escalations.WithLabelValues(to.String()).Inc()
	log.Printf("[SCHEDULER] Complaint %s escalated %s -> %s (%.1f days overdue)",
		c.ComplaintNumber, from, to, daysOverdue)

	s.events.Emit(ctx, Event{
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		Kind:            EventEscalated,
		RecipientRole:   to.NotifiedRole(),
		CitizenID:       c.CitizenID,
		Message:         fmt.Sprintf("Complaint %s escalated to %s", c.ComplaintNumber, to),
	})

	return &models.EscalationResult{
		ComplaintID: c.ComplaintID,
		Escalated:   true,
		FromLevel:   from,
		ToLevel:     to,
		Reason:      reason,
		ProcessedAt: now,
	}, nil
}

// AutoCloseTick closes resolved complaints whose sign-off window elapsed with
// no citizen action. Runs on the same cadence as Tick.
func (s *EscalationService) AutoCloseTick(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(s.autoCloseDays) * 24 * time.Hour)
	candidates, err := s.complaints.AutoCloseCandidates(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to load auto-close candidates: %w", err)
	}

	closed := 0
	for i := range candidates {
		c := &candidates[i]
		cctx, cancel := context.WithTimeout(ctx, s.perComplaintTimeout)
		err := s.autoClose(cctx, c, now)
		cancel()
		if err != nil {
			if errors.Is(err, models.ErrTransitionConflict) {
				continue
			}
			s.recordFailure(ctx, c.ComplaintID, err, now)
			continue
		}
		s.clearFailure(c.ComplaintID)
		closed++
	}
	return closed, nil
}

func (s *EscalationService) autoClose(ctx context.Context, c *models.Complaint, now time.Time) error {
	// The sweep takes the same table edge a citizen acceptance does; the
	// candidate query is the timeout half of its guard.
	from := c.CurrentState
	rule := models.FindTransition(from, models.StateClosed)
	if rule == nil || !rule.RoleAllowed(models.RoleSystem) {
		return models.InvalidTransition(c.ComplaintID, from, models.StateClosed)
	}

	expected := c.RowVersion
	c.CurrentState = models.StateClosed
	c.ClosedAt = sql.NullTime{Time: now, Valid: true}

	audit := models.NewAuditEntry(c.ComplaintID, models.AuditStateChange, models.SystemActor,
		string(from), string(models.StateClosed), models.ReasonAutoCloseElapsed)
	audit.CreatedAt = now

	if err := s.complaints.ApplyStateChange(ctx, c, expected, audit, nil); err != nil {
		return err
	}

	metrics.AutoClosed.Inc()
	metrics.Transitions.WithLabelValues(string(from), string(models.StateClosed)).Inc()
	log.Printf("[SCHEDULER] Complaint %s auto-closed after %d days without sign-off", c.ComplaintNumber, s.autoCloseDays)

	s.events.Emit(ctx, Event{
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		Kind:            EventAutoClosed,
		CitizenID:       c.CitizenID,
		Message:         fmt.Sprintf("Complaint %s was closed automatically; the sign-off window elapsed", c.ComplaintNumber),
	})
	return nil
}

// recordFailure counts a consecutive failure; past the limit the complaint is
// flagged needs-manual-attention and drops out of future candidate sets.
func (s *EscalationService) recordFailure(ctx context.Context, complaintID int64, cause error, now time.Time) {
	s.mu.Lock()
	s.failures[complaintID]++
	count := s.failures[complaintID]
	s.mu.Unlock()

	log.Printf("[SCHEDULER] Complaint %d failed (%d/%d): %v", complaintID, count, s.maxFailures, cause)
	if count < s.maxFailures {
		return
	}

	if err := s.complaints.SetNeedsManualAttention(ctx, complaintID, models.ReasonSchedulerRetry, now); err != nil {
		log.Printf("[SCHEDULER] Failed to flag complaint %d for manual attention: %v", complaintID, err)
		return
	}
	s.clearFailure(complaintID)
	log.Printf("[SCHEDULER] Complaint %d flagged for manual attention after %d consecutive failures", complaintID, s.maxFailures)
}

func (s *EscalationService) clearFailure(complaintID int64) {
	s.mu.Lock()
	delete(s.failures, complaintID)
	s.mu.Unlock()
}
