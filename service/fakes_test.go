package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"jansunwai/models"
)

// In-memory store fakes shared by the service tests. Each mirrors the
// corresponding repository's observable behavior, including the row-version
// compare-and-swap on complaints.

type fakeComplaintStore struct {
	mu          sync.Mutex
	complaints  map[int64]*models.Complaint
	audits      []models.AuditEntry
	escalations []models.EscalationEvent
	upvotes     map[string]bool
	flagged     map[int64]string
	nextID      int64
	seq         int64

	// conflictsLeft makes ApplyStateChange lose the CAS that many times.
	conflictsLeft int
	// applyErr, when set, fails ApplyStateChange with a non-conflict error.
	applyErr error
}

func newFakeComplaintStore() *fakeComplaintStore {
	return &fakeComplaintStore{
		complaints: make(map[int64]*models.Complaint),
		upvotes:    make(map[string]bool),
		flagged:    make(map[int64]string),
	}
}

func copyComplaint(c *models.Complaint) *models.Complaint {
	cp := *c
	return &cp
}

func (f *fakeComplaintStore) NextComplaintNumber(_ context.Context, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("GRV-%d-%05d", now.UTC().Year(), f.seq), nil
}

func (f *fakeComplaintStore) InsertComplaint(_ context.Context, c *models.Complaint, audit *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ComplaintID = f.nextID
	c.RowVersion = 1
	audit.EntityID = c.ComplaintID
	f.complaints[c.ComplaintID] = copyComplaint(c)
	f.audits = append(f.audits, *audit)
	return nil
}

func (f *fakeComplaintStore) GetComplaint(_ context.Context, complaintID int64) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[complaintID]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "complaint %d not found", complaintID)
	}
	return copyComplaint(c), nil
}

func (f *fakeComplaintStore) GetComplaintByNumber(_ context.Context, number string) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.complaints {
		if c.ComplaintNumber == number {
			return copyComplaint(c), nil
		}
	}
	return nil, models.Ef(models.KindNotFound, "complaint %s not found", number)
}

func (f *fakeComplaintStore) ApplyStateChange(_ context.Context, c *models.Complaint, expectedVersion int64, audit *models.AuditEntry, escalation *models.EscalationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return models.ErrTransitionConflict
	}
	stored, ok := f.complaints[c.ComplaintID]
	if !ok {
		return models.Ef(models.KindNotFound, "complaint %d not found", c.ComplaintID)
	}
	if stored.RowVersion != expectedVersion {
		return models.ErrTransitionConflict
	}
	c.RowVersion = expectedVersion + 1
	f.complaints[c.ComplaintID] = copyComplaint(c)
	f.audits = append(f.audits, *audit)
	if escalation != nil {
		f.escalations = append(f.escalations, *escalation)
	}
	return nil
}

func (f *fakeComplaintStore) ListByCitizen(_ context.Context, citizenID int64) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool { return c.CitizenID == citizenID }), nil
}

func (f *fakeComplaintStore) ListByDepartment(_ context.Context, departmentID int64) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool {
		return c.DepartmentID.Valid && c.DepartmentID.Int64 == departmentID && !c.CurrentState.IsTerminal()
	}), nil
}

func (f *fakeComplaintStore) ListByStaff(_ context.Context, staffID int64) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool {
		return c.AssignedStaffID.Valid && c.AssignedStaffID.Int64 == staffID && !c.CurrentState.IsTerminal()
	}), nil
}

func (f *fakeComplaintStore) ListPendingRouting(_ context.Context) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool {
		return c.NeedsManualRouting && !c.CurrentState.IsTerminal()
	}), nil
}

func (f *fakeComplaintStore) CountPendingRouting(ctx context.Context) (int, error) {
	pending, _ := f.ListPendingRouting(ctx)
	return len(pending), nil
}

func (f *fakeComplaintStore) FindNearby(_ context.Context, lat, lon, radiusKm float64, since time.Time) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool {
		if !c.Latitude.Valid || !c.Longitude.Valid || c.CreatedAt.Before(since) {
			return false
		}
		return haversineKm(lat, lon, c.Latitude.Float64, c.Longitude.Float64) <= radiusKm
	}), nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func (f *fakeComplaintStore) EscalationCandidates(_ context.Context, now time.Time) ([]models.Complaint, error) {
	out := f.filter(func(c *models.Complaint) bool {
		switch c.CurrentState {
		case models.StateFiled, models.StateInProgress, models.StateHold:
		default:
			return false
		}
		return !c.NeedsManualAttention && c.SLADeadline.Valid && c.SLADeadline.Time.Before(now)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].EscalationLevel != out[j].EscalationLevel {
			return out[i].EscalationLevel < out[j].EscalationLevel
		}
		return out[i].ComplaintID < out[j].ComplaintID
	})
	return out, nil
}

func (f *fakeComplaintStore) AutoCloseCandidates(_ context.Context, cutoff time.Time) ([]models.Complaint, error) {
	return f.filter(func(c *models.Complaint) bool {
		return c.CurrentState == models.StateResolved && c.ResolvedAt.Valid && c.ResolvedAt.Time.Before(cutoff)
	}), nil
}

func (f *fakeComplaintStore) SetNeedsManualAttention(_ context.Context, complaintID int64, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[complaintID]
	if !ok {
		return models.Ef(models.KindNotFound, "complaint %d not found", complaintID)
	}
	c.NeedsManualAttention = true
	f.flagged[complaintID] = reason
	audit := models.NewAuditEntry(complaintID, models.AuditSuspension, models.SystemActor, "", "", reason)
	audit.CreatedAt = at
	f.audits = append(f.audits, *audit)
	return nil
}

func (f *fakeComplaintStore) Upvote(_ context.Context, complaintID, citizenID int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%d", complaintID, citizenID)
	if f.upvotes[key] {
		return false, nil
	}
	f.upvotes[key] = true
	if c, ok := f.complaints[complaintID]; ok {
		c.UpvoteCount++
	}
	return true, nil
}

func (f *fakeComplaintStore) filter(keep func(*models.Complaint) bool) []models.Complaint {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Complaint
	for _, c := range f.complaints {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComplaintID < out[j].ComplaintID })
	return out
}

// stored returns the persisted row, bypassing the copy Get makes.
func (f *fakeComplaintStore) stored(complaintID int64) *models.Complaint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complaints[complaintID]
}

func (f *fakeComplaintStore) auditsFor(complaintID int64, action models.AuditAction) []models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.audits {
		if e.EntityID == complaintID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeProofStore struct {
	mu     sync.Mutex
	proofs []models.ResolutionProof
	nextID int64
}

func (f *fakeProofStore) Insert(_ context.Context, p *models.ResolutionProof) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ProofID = f.nextID
	f.proofs = append(f.proofs, *p)
	return nil
}

func (f *fakeProofStore) ActiveForCycle(_ context.Context, complaintID int64, cycle int) (*models.ResolutionProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.proofs) - 1; i >= 0; i-- {
		p := f.proofs[i]
		if p.ComplaintID == complaintID && p.Cycle == cycle && !p.Archived {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProofStore) ByComplaint(_ context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ResolutionProof
	for _, p := range f.proofs {
		if p.ComplaintID == complaintID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProofStore) ArchiveCycle(_ context.Context, complaintID int64, cycle int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.proofs {
		if f.proofs[i].ComplaintID == complaintID && f.proofs[i].Cycle == cycle {
			f.proofs[i].Archived = true
		}
	}
	return nil
}

type fakeSignoffStore struct {
	mu       sync.Mutex
	signoffs map[int64]*models.CitizenSignoff
	nextID   int64
}

func newFakeSignoffStore() *fakeSignoffStore {
	return &fakeSignoffStore{signoffs: make(map[int64]*models.CitizenSignoff)}
}

func (f *fakeSignoffStore) Insert(_ context.Context, s *models.CitizenSignoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.SignoffID = f.nextID
	cp := *s
	f.signoffs[s.SignoffID] = &cp
	return nil
}

func (f *fakeSignoffStore) Get(_ context.Context, signoffID int64) (*models.CitizenSignoff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signoffs[signoffID]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "sign-off %d not found", signoffID)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSignoffStore) ForCycle(_ context.Context, complaintID int64, cycle int) (*models.CitizenSignoff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.signoffs {
		if s.ComplaintID == complaintID && s.Cycle == cycle {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSignoffStore) RecordReview(_ context.Context, signoffID int64, approved bool, reason string, reviewerID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signoffs[signoffID]
	if !ok {
		return models.Ef(models.KindNotFound, "sign-off %d not found", signoffID)
	}
	if s.Approved.Valid {
		return models.E(models.KindConflict, "sign-off already reviewed")
	}
	s.Approved.Valid = true
	s.Approved.Bool = approved
	s.ReviewReason.Valid = reason != ""
	s.ReviewReason.String = reason
	s.ReviewedBy.Valid = true
	s.ReviewedBy.Int64 = reviewerID
	s.ReviewedAt.Valid = true
	s.ReviewedAt.Time = at
	return nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	nextID  int64
}

func (f *fakeAuditStore) Append(_ context.Context, e *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.AuditID = f.nextID
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAuditStore) ByEntity(_ context.Context, entityType string, entityID int64, limit int) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) ByAction(_ context.Context, action models.AuditAction, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.entries {
		if e.Action == action && !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAuditStore) ByActor(_ context.Context, actorID int64, limit int) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.ActorKind == models.ActorUser && e.ActorID.Valid && e.ActorID.Int64 == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) withReason(reason string) []models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.entries {
		if e.Reason.Valid && e.Reason.String == reason {
			out = append(out, e)
		}
	}
	return out
}

type fakeReferenceStore struct {
	categories  []models.Category
	departments []models.Department
	slaDays     map[string]int // "deptID|priority" -> days
}

func (f *fakeReferenceStore) Category(_ context.Context, categoryID int64) (*models.Category, error) {
	for i := range f.categories {
		if f.categories[i].CategoryID == categoryID {
			return &f.categories[i], nil
		}
	}
	return nil, models.Ef(models.KindNotFound, "category %d not found", categoryID)
}

func (f *fakeReferenceStore) Categories(_ context.Context) ([]models.Category, error) {
	return f.categories, nil
}

func (f *fakeReferenceStore) Department(_ context.Context, departmentID int64) (*models.Department, error) {
	for i := range f.departments {
		if f.departments[i].DepartmentID == departmentID {
			return &f.departments[i], nil
		}
	}
	return nil, models.Ef(models.KindNotFound, "department %d not found", departmentID)
}

func (f *fakeReferenceStore) Departments(_ context.Context) ([]models.Department, error) {
	return f.departments, nil
}

func (f *fakeReferenceStore) SLADays(_ context.Context, departmentID int64, priority models.Priority, defaultDays int) (int, error) {
	if days, ok := f.slaDays[fmt.Sprintf("%d|%s", departmentID, priority)]; ok {
		return days, nil
	}
	return defaultDays, nil
}

type fakeStaffDirectory struct {
	accounts map[int64]*models.StaffAccount
}

func (f *fakeStaffDirectory) GetStaff(_ context.Context, userID int64) (*models.StaffAccount, error) {
	a, ok := f.accounts[userID]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "staff %d not found", userID)
	}
	return a, nil
}

func (f *fakeStaffDirectory) ListStaffByDepartment(_ context.Context, departmentID int64) ([]models.StaffAccount, error) {
	var out []models.StaffAccount
	for _, a := range f.accounts {
		if a.DepartmentID.Valid && a.DepartmentID.Int64 == departmentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ConversationSession
	deny     bool
	deleted  []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.ConversationSession)}
}

func sessionKey(channel, address string) string { return channel + "|" + address }

func (f *fakeSessionStore) Get(_ context.Context, channel, address string) (*models.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(channel, address)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Save(_ context.Context, s *models.ConversationSession, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[sessionKey(s.Channel, s.Address)] = &cp
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, channel, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(channel, address)
	delete(f.sessions, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeSessionStore) AllowMessage(_ context.Context, _, _ string, _ int, _ time.Duration) (bool, error) {
	return !f.deny, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recordingEmitter) lastOfKind(kind string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			e := r.events[i]
			return &e
		}
	}
	return nil
}
