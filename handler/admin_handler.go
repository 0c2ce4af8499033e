package handler

import (
	"net/http"
	"strconv"
	"time"

	"jansunwai/middleware"
	"jansunwai/models"
	"jansunwai/service"
)

// AdminHandler serves manual routing, reassignment, and staff provisioning.
type AdminHandler struct {
	lifecycle *service.LifecycleService
	auth      *service.AuthService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(lifecycle *service.LifecycleService, auth *service.AuthService) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle, auth: auth}
}

// RoutingQueue handles GET /api/v1/admin/routing-queue
func (h *AdminHandler) RoutingQueue(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	complaints, err := h.lifecycle.RoutingQueue(r.Context(), actor)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"complaints": complaintResponses(complaints)})
}

// RoutingBacklog handles GET /api/v1/admin/routing-queue/count
func (h *AdminHandler) RoutingBacklog(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	count, err := h.lifecycle.RoutingBacklog(r.Context(), actor)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"pending_routing": count})
}

// AuditByAction handles GET /api/v1/admin/audit?action=...&from=...&to=...&limit=...
func (h *AdminHandler) AuditByAction(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	q := r.URL.Query()

	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.lifecycle.AuditByAction(r.Context(), actor, models.AuditAction(q.Get("action")), from, to, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// AuditByActor handles GET /api/v1/admin/audit/actors/{id}
func (h *AdminHandler) AuditByActor(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	actorID, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.lifecycle.AuditByActor(r.Context(), actor, actorID, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, models.Ef(models.KindInvalidInput, "invalid timestamp %q, want RFC3339", raw)
	}
	return t, nil
}

// Route handles POST /api/v1/complaints/{id}/route
func (h *AdminHandler) Route(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.RouteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	c, err := h.lifecycle.RouteManually(r.Context(), actor, id, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewComplaintResponse(c))
}

// Reassign handles POST /api/v1/complaints/{id}/reassign
func (h *AdminHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.ReassignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	c, err := h.lifecycle.Reassign(r.Context(), actor, id, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewComplaintResponse(c))
}

// CreateStaff handles POST /api/v1/admin/staff
func (h *AdminHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var req service.CreateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	account, err := h.auth.CreateStaff(r.Context(), actor, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, account)
}
