package handler

import (
	"net/http"

	"jansunwai/models"
	"jansunwai/service"
)

// IntakeHandler serves the channel webhook for the conversational collector.
// The gateway in front of it maps channel addresses to verified citizen ids.
type IntakeHandler struct {
	intake       *service.IntakeService
	webhookToken string
}

// NewIntakeHandler creates a new intake handler
func NewIntakeHandler(intake *service.IntakeService, webhookToken string) *IntakeHandler {
	return &IntakeHandler{intake: intake, webhookToken: webhookToken}
}

// Webhook handles POST /api/v1/intake/webhook
func (h *IntakeHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookToken != "" && r.Header.Get("X-Webhook-Token") != h.webhookToken {
		respondWithError(w, http.StatusUnauthorized, string(models.KindUnauthorized), "Invalid webhook token")
		return
	}

	var msg models.IntakeMessage
	if err := decodeJSON(r, &msg); err != nil {
		respondAppError(w, err)
		return
	}

	reply, err := h.intake.HandleMessage(r.Context(), &msg)
	if err != nil {
		if models.IsKind(err, models.KindRateLimited) {
			// Channel gateways expect a reply body even at saturation.
			respondWithJSON(w, http.StatusTooManyRequests, models.IntakeReply{
				Text: "You're sending messages a little fast. Please wait a moment and try again.",
			})
			return
		}
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reply)
}
