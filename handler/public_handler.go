package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"jansunwai/models"
	"jansunwai/service"
)

// PublicHandler serves the unauthenticated surfaces: health, the public case
// page, and attachment link verification.
type PublicHandler struct {
	lifecycle   *service.LifecycleService
	attachments *service.AttachmentService
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(lifecycle *service.LifecycleService, attachments *service.AttachmentService) *PublicHandler {
	return &PublicHandler{lifecycle: lifecycle, attachments: attachments}
}

// Health handles GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publicComplaint is the redacted projection for the public case page: no
// citizen identity, no staff assignment.
type publicComplaint struct {
	ComplaintNumber string `json:"complaint_number"`
	Title           string `json:"title"`
	State           string `json:"state"`
	Priority        string `json:"priority"`
	EscalationLevel string `json:"escalation_level"`
	UpvoteCount     int    `json:"upvote_count"`
	FiledAt         string `json:"filed_at"`
}

// TrackComplaint handles GET /api/v1/public/complaints/{number}
func (h *PublicHandler) TrackComplaint(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	c, err := h.lifecycle.GetComplaintByNumber(r.Context(), number)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, publicComplaint{
		ComplaintNumber: c.ComplaintNumber,
		Title:           c.Title,
		State:           string(c.CurrentState),
		Priority:        string(c.Priority),
		EscalationLevel: c.EscalationLevel.String(),
		UpvoteCount:     c.UpvoteCount,
		FiledAt:         c.CreatedAt.Format("2006-01-02"),
	})
}

// MintAttachmentHandle handles POST /api/v1/attachments — issues an opaque
// handle plus a short-lived signed fetch URL. Binary upload happens against
// the external store.
func (h *PublicHandler) MintAttachmentHandle(w http.ResponseWriter, r *http.Request) {
	handle := h.attachments.NewHandle()
	respondWithJSON(w, http.StatusCreated, map[string]string{
		"handle": handle,
		"url":    h.attachments.SignedURL(handle),
	})
}

// VerifyAttachment handles GET /attachments/{handle} — validates the
// signature and expiry of a fetch link.
func (h *PublicHandler) VerifyAttachment(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, string(models.KindInvalidInput), "Missing or invalid expires parameter")
		return
	}
	if err := h.attachments.VerifySignedURL(handle, expires, r.URL.Query().Get("sig")); err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"handle": handle, "verified": true})
}
