package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansunwai/models"
	"jansunwai/utils"
)

type escalationFixture struct {
	store   *fakeComplaintStore
	emitter *recordingEmitter
	clock   *utils.ManualClock
	svc     *EscalationService
}

func newEscalationFixture(maxFailures int) *escalationFixture {
	fx := &escalationFixture{
		store:   newFakeComplaintStore(),
		emitter: &recordingEmitter{},
		clock:   utils.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
	fx.svc = NewEscalationService(fx.store, fx.emitter, fx.clock,
		models.DefaultLadder, 7, maxFailures, time.Second)
	return fx
}

func (fx *escalationFixture) seed(t *testing.T, c *models.Complaint) *models.Complaint {
	t.Helper()
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	if c.ResolutionCycle == 0 {
		c.ResolutionCycle = 1
	}
	audit := models.NewAuditEntry(0, models.AuditCreated, models.SystemActor, "", string(c.CurrentState), "")
	require.NoError(t, fx.store.InsertComplaint(context.Background(), c, audit))
	return c
}

func TestTickAdvancesOneLevelPerPass(t *testing.T) {
	fx := newEscalationFixture(3)
	deadline := fx.clock.Now()
	c := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00001",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
		SLADeadline:     sql.NullTime{Time: deadline, Valid: true},
		SLADays:         5,
	})

	// Half a day overdue: ladder requires staff level.
	fx.clock.Set(deadline.Add(12 * time.Hour))
	results, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.EscalationNone, results[0].FromLevel)
	assert.Equal(t, models.EscalationStaff, results[0].ToLevel)
	assert.Equal(t, models.ReasonSLABreach, results[0].Reason)

	stored := fx.store.stored(c.ComplaintID)
	assert.Equal(t, models.EscalationStaff, stored.EscalationLevel)
	assert.Equal(t, models.PriorityHigh, stored.Priority)

	// Same instant again: already at the required level, nothing happens.
	results, err = fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)

	// A day and a half overdue: department head required.
	fx.clock.Set(deadline.Add(36 * time.Hour))
	results, err = fx.svc.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.EscalationDeptHead, results[0].ToLevel)
	assert.Equal(t, models.ReasonLevelTimerElapsed, results[0].Reason)
}

func TestTickNeverSkipsLevels(t *testing.T) {
	fx := newEscalationFixture(3)
	deadline := fx.clock.Now()
	c := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00002",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
		SLADeadline:     sql.NullTime{Time: deadline, Valid: true},
	})

	// Ten days overdue: the ladder demands commissioner, but each tick still
	// moves a single step.
	fx.clock.Set(deadline.Add(10 * 24 * time.Hour))
	wantLevels := []models.EscalationLevel{
		models.EscalationStaff,
		models.EscalationDeptHead,
		models.EscalationAdmin,
		models.EscalationCommissioner,
	}
	for _, want := range wantLevels {
		results, err := fx.svc.Tick(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, want, results[0].ToLevel)
	}

	// At the top: further ticks are no-ops and priority stays capped.
	results, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	stored := fx.store.stored(c.ComplaintID)
	assert.Equal(t, models.EscalationCommissioner, stored.EscalationLevel)
	assert.Equal(t, models.PriorityCritical, stored.Priority)

	// Every step left an escalation event and an audit entry.
	require.Len(t, fx.store.escalations, 4)
	assert.Equal(t, models.RoleStaff, fx.store.escalations[0].NotifiedRole)
	assert.Equal(t, models.RoleSuperAdmin, fx.store.escalations[3].NotifiedRole)
	audits := fx.store.auditsFor(c.ComplaintID, models.AuditEscalation)
	require.Len(t, audits, 4)
	for _, e := range audits {
		assert.Equal(t, models.ActorSystem, e.ActorKind)
	}
}

func TestTickIgnoresComplaintsWithinSLA(t *testing.T) {
	fx := newEscalationFixture(3)
	fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00003",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
		SLADeadline:     sql.NullTime{Time: fx.clock.Now().Add(24 * time.Hour), Valid: true},
	})

	results, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTickSkipsOnConcurrentModification(t *testing.T) {
	fx := newEscalationFixture(3)
	deadline := fx.clock.Now()
	c := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00004",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
		SLADeadline:     sql.NullTime{Time: deadline, Valid: true},
	})

	fx.clock.Set(deadline.Add(12 * time.Hour))
	fx.store.conflictsLeft = 1
	results, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	// No failure is counted for a lost race; the next tick succeeds.
	assert.Empty(t, fx.store.flagged)
	assert.Equal(t, models.EscalationNone, fx.store.stored(c.ComplaintID).EscalationLevel)

	results, err = fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestTickFlagsComplaintAfterRepeatedFailures(t *testing.T) {
	fx := newEscalationFixture(2)
	deadline := fx.clock.Now()
	c := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00005",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
		SLADeadline:     sql.NullTime{Time: deadline, Valid: true},
	})

	fx.clock.Set(deadline.Add(12 * time.Hour))
	fx.store.applyErr = errors.New("storage write failed")

	_, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fx.store.flagged)

	_, err = fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ReasonSchedulerRetry, fx.store.flagged[c.ComplaintID])
	assert.True(t, fx.store.stored(c.ComplaintID).NeedsManualAttention)

	// Flagged complaints drop out of the candidate set.
	fx.store.applyErr = nil
	results, err := fx.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAutoCloseAfterSignoffWindow(t *testing.T) {
	fx := newEscalationFixture(3)
	now := fx.clock.Now()
	stale := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00006",
		CitizenID:       7,
		CurrentState:    models.StateResolved,
		ResolvedAt:      sql.NullTime{Time: now.Add(-8 * 24 * time.Hour), Valid: true},
	})
	recent := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00007",
		CitizenID:       7,
		CurrentState:    models.StateResolved,
		ResolvedAt:      sql.NullTime{Time: now.Add(-2 * 24 * time.Hour), Valid: true},
	})

	closed, err := fx.svc.AutoCloseTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	storedStale := fx.store.stored(stale.ComplaintID)
	assert.Equal(t, models.StateClosed, storedStale.CurrentState)
	assert.True(t, storedStale.ClosedAt.Valid)
	assert.Equal(t, models.StateResolved, fx.store.stored(recent.ComplaintID).CurrentState)

	audits := fx.store.auditsFor(stale.ComplaintID, models.AuditStateChange)
	require.Len(t, audits, 1)
	assert.Equal(t, models.ActorSystem, audits[0].ActorKind)
	assert.Equal(t, models.ReasonAutoCloseElapsed, audits[0].Reason.String)

	event := fx.emitter.lastOfKind(EventAutoClosed)
	require.NotNil(t, event)
	assert.EqualValues(t, 7, event.CitizenID)
}

func TestAutoCloseConsultsTransitionTable(t *testing.T) {
	fx := newEscalationFixture(3)
	c := fx.seed(t, &models.Complaint{
		ComplaintNumber: "GRV-2026-00008",
		CitizenID:       7,
		CurrentState:    models.StateInProgress,
	})

	// A candidate that raced back out of resolved is refused, not closed.
	err := fx.svc.autoClose(context.Background(), fx.store.stored(c.ComplaintID), fx.clock.Now())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidStateTransition))
	assert.Equal(t, models.StateInProgress, fx.store.stored(c.ComplaintID).CurrentState)
}
