package handler

import (
	"net/http"
	"strconv"

	"jansunwai/middleware"
	"jansunwai/models"
	"jansunwai/service"
)

// ComplaintHandler serves complaint CRUD, lists, and state transitions.
type ComplaintHandler struct {
	lifecycle *service.LifecycleService
}

// NewComplaintHandler creates a new complaint handler
func NewComplaintHandler(lifecycle *service.LifecycleService) *ComplaintHandler {
	return &ComplaintHandler{lifecycle: lifecycle}
}

// Create handles POST /api/v1/complaints
func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	if actor.Role != models.RoleCitizen {
		respondWithError(w, http.StatusForbidden, string(models.KindForbidden), "Only citizens file complaints")
		return
	}

	var req models.CreateComplaintRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	c, err := h.lifecycle.CreateComplaint(r.Context(), actor.UserID, &req, "api")
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.NewComplaintResponse(c))
}

// Nearby handles GET /api/v1/complaints/nearby?lat=...&lon=... — recent
// complaints around a point, for duplicate checks before filing.
func (h *ComplaintHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		respondWithError(w, http.StatusBadRequest, string(models.KindInvalidInput), "lat and lon query parameters are required")
		return
	}

	complaints, err := h.lifecycle.PossibleDuplicates(r.Context(), lat, lon, 0)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"complaints": complaintResponses(complaints)})
}

// Get handles GET /api/v1/complaints/{id}
func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	c, err := h.lifecycle.GetComplaint(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if actor.Role == models.RoleCitizen && c.CitizenID != actor.UserID {
		respondWithError(w, http.StatusForbidden, string(models.KindForbidden), "Complaint belongs to another citizen")
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewComplaintResponse(c))
}

// List handles GET /api/v1/complaints — the caller's role decides the queue.
func (h *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var (
		complaints []models.Complaint
		err        error
	)
	switch actor.Role {
	case models.RoleCitizen:
		complaints, err = h.lifecycle.MyComplaints(r.Context(), actor)
	case models.RoleStaff, models.RoleDeptHead:
		complaints, err = h.lifecycle.DepartmentQueue(r.Context(), actor)
	case models.RoleAdmin, models.RoleSuperAdmin:
		complaints, err = h.lifecycle.RoutingQueue(r.Context(), actor)
	default:
		respondWithError(w, http.StatusForbidden, string(models.KindForbidden), "No complaint list for this role")
		return
	}
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"complaints": complaintResponses(complaints)})
}

// Transition handles POST /api/v1/complaints/{id}/state
func (h *ComplaintHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondAppError(w, err)
		return
	}

	tctx := models.TransitionContext{}
	if req.Context != nil {
		tctx = *req.Context
	}
	c, err := h.lifecycle.ApplyTransition(r.Context(), actor, id, models.ComplaintState(req.TargetState), tctx)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewComplaintResponse(c))
}

// AvailableTransitions handles GET /api/v1/complaints/{id}/transitions
func (h *ComplaintHandler) AvailableTransitions(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	rules, err := h.lifecycle.AvailableTransitions(r.Context(), actor, id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	type transitionOption struct {
		To    string `json:"to"`
		Guard string `json:"guard,omitempty"`
	}
	options := make([]transitionOption, 0, len(rules))
	for _, rule := range rules {
		options = append(options, transitionOption{To: string(rule.To), Guard: string(rule.Guard)})
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"transitions": options})
}

// History handles GET /api/v1/complaints/{id}/history
func (h *ComplaintHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.lifecycle.History(r.Context(), id, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// Upvote handles POST /api/v1/complaints/{id}/upvote
func (h *ComplaintHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	if actor.Role != models.RoleCitizen {
		respondWithError(w, http.StatusForbidden, string(models.KindForbidden), "Only citizens upvote complaints")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	counted, err := h.lifecycle.Upvote(r.Context(), actor.UserID, id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"counted": counted})
}
