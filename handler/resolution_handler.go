package handler

import (
	"net/http"

	"jansunwai/middleware"
	"jansunwai/models"
	"jansunwai/service"
)

// ResolutionHandler serves the proof / sign-off / dispute endpoints.
type ResolutionHandler struct {
	resolution *service.ResolutionService
}

// NewResolutionHandler creates a new resolution handler
func NewResolutionHandler(resolution *service.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolution: resolution}
}

// UploadProof handles POST /api/v1/complaints/{id}/proof
func (h *ResolutionHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.UploadProofRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	proof, err := h.resolution.UploadProof(r.Context(), actor, id, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, proof)
}

// ListProofs handles GET /api/v1/complaints/{id}/proofs
func (h *ResolutionHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	proofs, err := h.resolution.ProofsFor(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"proofs": proofs})
}

// Signoff handles POST /api/v1/complaints/{id}/signoff
func (h *ResolutionHandler) Signoff(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.SignoffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	signoff, err := h.resolution.SubmitSignoff(r.Context(), actor, id, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, signoff)
}

// GetSignoff handles GET /api/v1/complaints/{id}/signoff
func (h *ResolutionHandler) GetSignoff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	signoff, err := h.resolution.SignoffFor(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if signoff == nil {
		respondWithError(w, http.StatusNotFound, string(models.KindNotFound), "No sign-off for the current resolution cycle")
		return
	}
	respondWithJSON(w, http.StatusOK, signoff)
}

// ReviewDispute handles POST /api/v1/complaints/{id}/disputes/{signoff_id}/review
func (h *ResolutionHandler) ReviewDispute(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	signoffID, err := pathID(r, "signoff_id")
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req models.ReviewDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	c, err := h.resolution.ReviewDispute(r.Context(), actor, id, signoffID, &req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewComplaintResponse(c))
}
