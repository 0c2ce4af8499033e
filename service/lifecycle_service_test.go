package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansunwai/classifier"
	"jansunwai/models"
	"jansunwai/utils"
)

var (
	citizen7  = models.Actor{UserID: 7, Role: models.RoleCitizen}
	citizen8  = models.Actor{UserID: 8, Role: models.RoleCitizen}
	staff101  = models.Actor{UserID: 101, Role: models.RoleStaff, DepartmentID: 1}
	staff102  = models.Actor{UserID: 102, Role: models.RoleStaff, DepartmentID: 2}
	head501   = models.Actor{UserID: 501, Role: models.RoleDeptHead, DepartmentID: 1}
	head502   = models.Actor{UserID: 502, Role: models.RoleDeptHead, DepartmentID: 2}
	admin900  = models.Actor{UserID: 900, Role: models.RoleAdmin}
)

type lifecycleFixture struct {
	store    *fakeComplaintStore
	proofs   *fakeProofStore
	signoffs *fakeSignoffStore
	audits   *fakeAuditStore
	refs     *fakeReferenceStore
	staff    *fakeStaffDirectory
	emitter  *recordingEmitter
	clock    *utils.ManualClock
	svc      *LifecycleService
}

func nullDept(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}

func newLifecycleFixture() *lifecycleFixture {
	fx := &lifecycleFixture{
		store:    newFakeComplaintStore(),
		proofs:   &fakeProofStore{},
		signoffs: newFakeSignoffStore(),
		audits:   &fakeAuditStore{},
		emitter:  &recordingEmitter{},
		clock:    utils.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
	fx.refs = &fakeReferenceStore{
		categories: []models.Category{
			{CategoryID: 1, Name: "Roads", Keywords: "pothole,road,asphalt", DefaultDepartmentID: 1},
			{CategoryID: 2, Name: "Water Supply", Keywords: "water,leak,pipeline", DefaultDepartmentID: 2},
		},
		departments: []models.Department{
			{DepartmentID: 1, Name: "Public Works", HeadUserID: 501},
			{DepartmentID: 2, Name: "Water Board", HeadUserID: 502},
		},
		slaDays: map[string]int{
			"1|medium": 5,
			"1|high":   3,
			"2|medium": 10,
		},
	}
	fx.staff = &fakeStaffDirectory{accounts: map[int64]*models.StaffAccount{
		101: {UserID: 101, Name: "Field Staff A", Role: models.RoleStaff, DepartmentID: nullDept(1), Active: true},
		102: {UserID: 102, Name: "Field Staff B", Role: models.RoleStaff, DepartmentID: nullDept(2), Active: true},
		103: {UserID: 103, Name: "Former Staff", Role: models.RoleStaff, DepartmentID: nullDept(1), Active: false},
		501: {UserID: 501, Name: "PW Head", Role: models.RoleDeptHead, DepartmentID: nullDept(1), Active: true},
	}}
	fx.svc = NewLifecycleService(
		fx.store, fx.proofs, fx.signoffs, fx.audits, fx.refs, fx.staff,
		classifier.NewKeywordClassifier(), fx.emitter, fx.clock,
		0.7, 7,
	)
	return fx
}

// filePothole files a complaint that classifies confidently into department 1.
func filePothole(t *testing.T, fx *lifecycleFixture, citizenID int64) *models.Complaint {
	t.Helper()
	c, err := fx.svc.CreateComplaint(context.Background(), citizenID, &models.CreateComplaintRequest{
		Title:       "Pothole on main road",
		Description: "There is a huge pothole on the main road near the market",
		Location:    "MG Road, opposite SBI bank",
	}, "api")
	require.NoError(t, err)
	return c
}

// startWork moves a filed complaint to in_progress as staff 101.
func startWork(t *testing.T, fx *lifecycleFixture, complaintID int64) *models.Complaint {
	t.Helper()
	c, err := fx.svc.ApplyTransition(context.Background(), staff101, complaintID, models.StateInProgress, models.TransitionContext{})
	require.NoError(t, err)
	return c
}

func TestCreateComplaintClassifiesAndSetsSLA(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	assert.Equal(t, models.StateFiled, c.CurrentState)
	assert.True(t, strings.HasPrefix(c.ComplaintNumber, "GRV-2026-"), c.ComplaintNumber)
	require.True(t, c.DepartmentID.Valid)
	assert.EqualValues(t, 1, c.DepartmentID.Int64)
	assert.False(t, c.NeedsManualRouting)
	assert.Equal(t, 1, c.ResolutionCycle)

	// Two keyword hits: confidence 0.8, above the 0.7 threshold.
	assert.InDelta(t, 0.8, c.AIConfidence, 0.001)

	// SLA matrix entry for (public works, medium) is 5 days.
	assert.Equal(t, 5, c.SLADays)
	require.True(t, c.SLADeadline.Valid)
	assert.Equal(t, fx.clock.Now().Add(5*24*time.Hour), c.SLADeadline.Time)

	created := fx.store.auditsFor(c.ComplaintID, models.AuditCreated)
	require.Len(t, created, 1)
	assert.Equal(t, models.ActorUser, created[0].ActorKind)

	filed := fx.emitter.lastOfKind(EventComplaintFiled)
	require.NotNil(t, filed)
	assert.Equal(t, c.ComplaintNumber, filed.ComplaintNumber)
}

func TestCreateComplaintLowConfidenceEntersRoutingQueue(t *testing.T) {
	fx := newLifecycleFixture()
	c, err := fx.svc.CreateComplaint(context.Background(), 7, &models.CreateComplaintRequest{
		Title:       "Strange smell",
		Description: "A strange chemical smell fills the whole colony every evening",
		Location:    "Ward 12, near the government school",
	}, "api")
	require.NoError(t, err)

	assert.True(t, c.NeedsManualRouting)
	assert.False(t, c.DepartmentID.Valid)
	// Default SLA applies until an admin routes it.
	assert.Equal(t, 7, c.SLADays)

	queue, err := fx.svc.RoutingQueue(context.Background(), admin900)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, c.ComplaintID, queue[0].ComplaintID)
}

func TestCreateComplaintValidation(t *testing.T) {
	fx := newLifecycleFixture()
	lat := 23.25
	_, err := fx.svc.CreateComplaint(context.Background(), 7, &models.CreateComplaintRequest{
		Title:    "Pothole",
		Location: "MG Road",
		Latitude: &lat, // longitude missing
	}, "api")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	_, err = fx.svc.CreateComplaint(context.Background(), 0, &models.CreateComplaintRequest{
		Title: "Pothole", Description: "pothole on road", Location: "MG Road",
	}, "api")
	assert.True(t, models.IsKind(err, models.KindUnauthorized))
}

func TestTransitionTableRejectsUnknownEdge(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	_, err := fx.svc.ApplyTransition(context.Background(), staff101, c.ComplaintID, models.StateResolved, models.TransitionContext{})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidStateTransition))
}

func TestTransitionRoleForbidden(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	// Citizens cannot start work on their own complaint.
	_, err := fx.svc.ApplyTransition(context.Background(), citizen7, c.ComplaintID, models.StateInProgress, models.TransitionContext{})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestTransitionOwnershipScoping(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	// Staff of another department.
	_, err := fx.svc.ApplyTransition(context.Background(), staff102, c.ComplaintID, models.StateInProgress, models.TransitionContext{})
	assert.True(t, models.IsKind(err, models.KindForbidden))

	// Another citizen cannot cancel.
	_, err = fx.svc.ApplyTransition(context.Background(), citizen8, c.ComplaintID, models.StateCancelled, models.TransitionContext{})
	assert.True(t, models.IsKind(err, models.KindForbidden))

	// The owner can.
	out, err := fx.svc.ApplyTransition(context.Background(), citizen7, c.ComplaintID, models.StateCancelled, models.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, out.CurrentState)
	assert.True(t, out.ClosedAt.Valid)
}

func TestStaffSelfAssignsOnStart(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	out := startWork(t, fx, c.ComplaintID)
	assert.Equal(t, models.StateInProgress, out.CurrentState)
	require.True(t, out.AssignedStaffID.Valid)
	assert.EqualValues(t, 101, out.AssignedStaffID.Int64)
	assert.True(t, out.StartedAt.Valid)

	// Once assigned, a different staff member is locked out.
	_, err := fx.svc.ApplyTransition(context.Background(), models.Actor{UserID: 999, Role: models.RoleStaff, DepartmentID: 1},
		c.ComplaintID, models.StateResolved, models.TransitionContext{})
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestDeptHeadStartRequiresAssignee(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	_, err := fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateInProgress, models.TransitionContext{})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	assignee := int64(101)
	out, err := fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateInProgress,
		models.TransitionContext{AssigneeID: &assignee})
	require.NoError(t, err)
	assert.EqualValues(t, 101, out.AssignedStaffID.Int64)
}

func TestAssigneeMustBeActiveAndInDepartment(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	inactive := int64(103)
	_, err := fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateInProgress,
		models.TransitionContext{AssigneeID: &inactive})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	wrongDept := int64(102)
	_, err = fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateInProgress,
		models.TransitionContext{AssigneeID: &wrongDept})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))
}

func TestHoldRequiresReason(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	_, err := fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateHold, models.TransitionContext{})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	out, err := fx.svc.ApplyTransition(context.Background(), head501, c.ComplaintID, models.StateHold,
		models.TransitionContext{Reason: "awaiting contractor availability"})
	require.NoError(t, err)
	assert.Equal(t, models.StateHold, out.CurrentState)
}

func TestResolveRequiresActiveProof(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)
	startWork(t, fx, c.ComplaintID)

	_, err := fx.svc.ApplyTransition(context.Background(), staff101, c.ComplaintID, models.StateResolved, models.TransitionContext{})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindProofRequired))

	require.NoError(t, fx.proofs.Insert(context.Background(), &models.ResolutionProof{
		ComplaintID: c.ComplaintID, Cycle: 1, ImageHandle: "att_x", EvidenceHash: strings.Repeat("a", 64),
		CapturedAt: fx.clock.Now(), StaffID: 101, CreatedAt: fx.clock.Now(),
	}))
	out, err := fx.svc.ApplyTransition(context.Background(), staff101, c.ComplaintID, models.StateResolved, models.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, models.StateResolved, out.CurrentState)
	assert.True(t, out.ResolvedAt.Valid)
}

func TestTransitionRecordsAuditWithStates(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)
	startWork(t, fx, c.ComplaintID)

	changes := fx.store.auditsFor(c.ComplaintID, models.AuditStateChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "filed", changes[0].OldValue.String)
	assert.Equal(t, "in_progress", changes[0].NewValue.String)
	assert.EqualValues(t, 101, changes[0].ActorID.Int64)
}

func TestTransitionRetriesConflictThenSucceeds(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	fx.store.conflictsLeft = 2
	out, err := fx.svc.ApplyTransition(context.Background(), staff101, c.ComplaintID, models.StateInProgress, models.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, models.StateInProgress, out.CurrentState)
	assert.Equal(t, 0, fx.store.conflictsLeft)
}

func TestTransitionConflictSurfacesAfterRetriesExhausted(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	fx.store.conflictsLeft = 10
	_, err := fx.svc.ApplyTransition(context.Background(), staff101, c.ComplaintID, models.StateInProgress, models.TransitionContext{})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindConflict))
	assert.Equal(t, models.StateFiled, fx.store.stored(c.ComplaintID).CurrentState)
}

func TestAvailableTransitionsForCitizen(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	rules, err := fx.svc.AvailableTransitions(context.Background(), citizen7, c.ComplaintID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.StateCancelled, rules[0].To)

	// Another citizen sees nothing.
	rules, err = fx.svc.AvailableTransitions(context.Background(), citizen8, c.ComplaintID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRouteManuallyAnchorsSLAAtFiling(t *testing.T) {
	fx := newLifecycleFixture()
	c, err := fx.svc.CreateComplaint(context.Background(), 7, &models.CreateComplaintRequest{
		Title:       "Strange smell",
		Description: "A strange chemical smell fills the whole colony every evening",
		Location:    "Ward 12, near the government school",
	}, "api")
	require.NoError(t, err)
	require.True(t, c.NeedsManualRouting)
	filedAt := c.CreatedAt

	// The admin only gets to it two days later.
	fx.clock.Advance(48 * time.Hour)

	out, err := fx.svc.RouteManually(context.Background(), admin900, c.ComplaintID, &models.RouteRequest{
		DepartmentID: 2, Reason: "smells are a water board matter",
	})
	require.NoError(t, err)
	assert.False(t, out.NeedsManualRouting)
	assert.EqualValues(t, 2, out.DepartmentID.Int64)
	assert.Equal(t, 10, out.SLADays)
	// Anchored at filing, not at routing time.
	assert.Equal(t, filedAt.Add(10*24*time.Hour), out.SLADeadline.Time)

	require.Len(t, fx.store.auditsFor(c.ComplaintID, models.AuditRouting), 1)
	slaAudits, err := fx.audits.ByEntity(context.Background(), "complaint", c.ComplaintID, 10)
	require.NoError(t, err)
	require.Len(t, slaAudits, 1)
	assert.Equal(t, models.AuditSLAUpdate, slaAudits[0].Action)
}

func TestRouteManuallyRejectsNonPending(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7) // classified confidently, not pending

	_, err := fx.svc.RouteManually(context.Background(), admin900, c.ComplaintID, &models.RouteRequest{
		DepartmentID: 2, Reason: "nope",
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindConflict))

	_, err = fx.svc.RouteManually(context.Background(), head501, c.ComplaintID, &models.RouteRequest{
		DepartmentID: 2, Reason: "nope",
	})
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestReassignWithinDepartment(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)
	startWork(t, fx, c.ComplaintID)

	fx.staff.accounts[104] = &models.StaffAccount{
		UserID: 104, Name: "Field Staff C", Role: models.RoleStaff, DepartmentID: nullDept(1), Active: true,
	}
	out, err := fx.svc.Reassign(context.Background(), head501, c.ComplaintID, &models.ReassignRequest{StaffID: 104})
	require.NoError(t, err)
	assert.EqualValues(t, 104, out.AssignedStaffID.Int64)

	assigned := fx.emitter.lastOfKind(EventAssigned)
	require.NotNil(t, assigned)
	assert.EqualValues(t, 104, assigned.RecipientUserID)

	// Cross-department assignment is refused.
	_, err = fx.svc.Reassign(context.Background(), head501, c.ComplaintID, &models.ReassignRequest{StaffID: 102})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	// A head of another department cannot touch it at all.
	_, err = fx.svc.Reassign(context.Background(), head502, c.ComplaintID, &models.ReassignRequest{StaffID: 102})
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestUpvoteIsIdempotentPerCitizen(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)

	counted, err := fx.svc.Upvote(context.Background(), 8, c.ComplaintID)
	require.NoError(t, err)
	assert.True(t, counted)

	counted, err = fx.svc.Upvote(context.Background(), 8, c.ComplaintID)
	require.NoError(t, err)
	assert.False(t, counted)

	assert.Equal(t, 1, fx.store.stored(c.ComplaintID).UpvoteCount)
}

// fileWithCoords files a confidently-classified complaint at the given point.
func fileWithCoords(t *testing.T, fx *lifecycleFixture, citizenID int64, lat, lon float64) *models.Complaint {
	t.Helper()
	c, err := fx.svc.CreateComplaint(context.Background(), citizenID, &models.CreateComplaintRequest{
		Title:       "Pothole on main road",
		Description: "There is a huge pothole on the main road near the market",
		Location:    "MG Road, opposite SBI bank",
		Latitude:    &lat,
		Longitude:   &lon,
	}, "api")
	require.NoError(t, err)
	return c
}

func TestPossibleDuplicatesFindsRecentNearby(t *testing.T) {
	fx := newLifecycleFixture()

	// Filed four days ago: outside the lookback window.
	stale := fileWithCoords(t, fx, 7, 23.2599, 77.4126)
	fx.clock.Advance(96 * time.Hour)

	near := fileWithCoords(t, fx, 8, 23.2601, 77.4127) // ~25m away
	far := fileWithCoords(t, fx, 8, 23.3100, 77.5000)  // several km away

	matches, err := fx.svc.PossibleDuplicates(context.Background(), 23.2599, 77.4126, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near.ComplaintID, matches[0].ComplaintID)
	for _, m := range matches {
		assert.NotEqual(t, stale.ComplaintID, m.ComplaintID)
		assert.NotEqual(t, far.ComplaintID, m.ComplaintID)
	}
}

func TestPossibleDuplicatesSkipsSelfAndCancelled(t *testing.T) {
	fx := newLifecycleFixture()
	first := fileWithCoords(t, fx, 7, 23.2599, 77.4126)
	second := fileWithCoords(t, fx, 8, 23.2600, 77.4126)

	matches, err := fx.svc.PossibleDuplicates(context.Background(), 23.2599, 77.4126, first.ComplaintID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, second.ComplaintID, matches[0].ComplaintID)

	_, err = fx.svc.ApplyTransition(context.Background(), citizen8, second.ComplaintID, models.StateCancelled, models.TransitionContext{})
	require.NoError(t, err)

	matches, err = fx.svc.PossibleDuplicates(context.Background(), 23.2599, 77.4126, first.ComplaintID)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRoutingBacklogCountsPending(t *testing.T) {
	fx := newLifecycleFixture()
	filePothole(t, fx, 7) // confidently routed, not counted

	_, err := fx.svc.CreateComplaint(context.Background(), 7, &models.CreateComplaintRequest{
		Title:       "Strange smell",
		Description: "A strange chemical smell fills the whole colony every evening",
		Location:    "Ward 12, near the government school",
	}, "api")
	require.NoError(t, err)

	count, err := fx.svc.RoutingBacklog(context.Background(), admin900)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = fx.svc.RoutingBacklog(context.Background(), head501)
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestAuditQueriesByActionAndActor(t *testing.T) {
	fx := newLifecycleFixture()
	c, err := fx.svc.CreateComplaint(context.Background(), 7, &models.CreateComplaintRequest{
		Title:       "Strange smell",
		Description: "A strange chemical smell fills the whole colony every evening",
		Location:    "Ward 12, near the government school",
	}, "api")
	require.NoError(t, err)

	// Manual routing recomputes the SLA and leaves an sla_update entry.
	_, err = fx.svc.RouteManually(context.Background(), admin900, c.ComplaintID, &models.RouteRequest{
		DepartmentID: 2, Reason: "smells are a water board matter",
	})
	require.NoError(t, err)

	entries, err := fx.svc.AuditByAction(context.Background(), admin900, models.AuditSLAUpdate, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, c.ComplaintID, entries[0].EntityID)

	byActor, err := fx.svc.AuditByActor(context.Background(), admin900, 900, 0)
	require.NoError(t, err)
	require.NotEmpty(t, byActor)
	assert.EqualValues(t, 900, byActor[0].ActorID.Int64)

	_, err = fx.svc.AuditByAction(context.Background(), admin900, "no_such_action", time.Time{}, time.Time{}, 0)
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	_, err = fx.svc.AuditByAction(context.Background(), head501, models.AuditSLAUpdate, time.Time{}, time.Time{}, 0)
	assert.True(t, models.IsKind(err, models.KindForbidden))

	_, err = fx.svc.AuditByActor(context.Background(), citizen7, 900, 0)
	assert.True(t, models.IsKind(err, models.KindForbidden))
}

func TestQueueScopes(t *testing.T) {
	fx := newLifecycleFixture()
	c := filePothole(t, fx, 7)
	startWork(t, fx, c.ComplaintID)

	mine, err := fx.svc.MyComplaints(context.Background(), citizen7)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	assigned, err := fx.svc.DepartmentQueue(context.Background(), staff101)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	deptWide, err := fx.svc.DepartmentQueue(context.Background(), head502)
	require.NoError(t, err)
	assert.Empty(t, deptWide)

	_, err = fx.svc.RoutingQueue(context.Background(), citizen7)
	assert.True(t, models.IsKind(err, models.KindForbidden))
}
