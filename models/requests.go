package models

import (
	"strings"
	"time"
)

// ValidationError is one INVALID_INPUT detail: the failing field and why.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// invalidInput builds the INVALID_INPUT AppError from validator output.
func invalidInput(errs []ValidationError) *AppError {
	details := make(map[string]interface{}, len(errs))
	for _, ve := range errs {
		details[ve.Field] = ve.Message
	}
	return E(KindInvalidInput, "request validation failed").WithDetails(details)
}

// CreateComplaintRequest is the POST /complaints payload.
type CreateComplaintRequest struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Location            string   `json:"location"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	ImageHandle         *string  `json:"image_handle,omitempty"`
	ImageAnalysis       *string  `json:"image_analysis,omitempty"`
}

// Validate returns an INVALID_INPUT error listing every failing field, or nil.
func (r *CreateComplaintRequest) Validate() error {
	var errs []ValidationError
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, ValidationError{"title", "title is required"})
	}
	if strings.TrimSpace(r.Description) == "" {
		errs = append(errs, ValidationError{"description", "description is required"})
	}
	if strings.TrimSpace(r.Location) == "" {
		errs = append(errs, ValidationError{"location", "a specific location is required"})
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		errs = append(errs, ValidationError{"latitude", "latitude must be within [-90, 90]"})
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		errs = append(errs, ValidationError{"longitude", "longitude must be within [-180, 180]"})
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		errs = append(errs, ValidationError{"coordinates", "latitude and longitude must be provided together"})
	}
	if len(errs) > 0 {
		return invalidInput(errs)
	}
	return nil
}

// TransitionRequest is the POST /complaints/{id}/state payload.
type TransitionRequest struct {
	TargetState string             `json:"target_state"`
	Context     *TransitionContext `json:"context,omitempty"`
}

// Validate checks the target state names a known lifecycle state.
func (r *TransitionRequest) Validate() error {
	switch ComplaintState(r.TargetState) {
	case StateFiled, StateInProgress, StateResolved, StateClosed, StateCancelled, StateHold:
		return nil
	}
	return invalidInput([]ValidationError{{"target_state", "unknown state: " + r.TargetState}})
}

// UploadProofRequest is the POST /complaints/{id}/proof payload.
type UploadProofRequest struct {
	ImageHandle string   `json:"image_handle"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Remarks     string   `json:"remarks,omitempty"`
}

func (r *UploadProofRequest) Validate() error {
	var errs []ValidationError
	if strings.TrimSpace(r.ImageHandle) == "" {
		errs = append(errs, ValidationError{"image_handle", "proof image is required"})
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		errs = append(errs, ValidationError{"coordinates", "latitude and longitude must be provided together"})
	}
	if len(errs) > 0 {
		return invalidInput(errs)
	}
	return nil
}

// SignoffRequest is the POST /complaints/{id}/signoff payload. Exactly one of
// accepted/disputed must be set.
type SignoffRequest struct {
	Accepted           bool    `json:"accepted"`
	Disputed           bool    `json:"disputed"`
	Rating             *int    `json:"rating,omitempty"`
	DisputeReason      string  `json:"dispute_reason,omitempty"`
	CounterProofHandle *string `json:"counter_proof_handle,omitempty"`
	Feedback           string  `json:"feedback,omitempty"`
}

func (r *SignoffRequest) Validate() error {
	var errs []ValidationError
	if r.Accepted == r.Disputed {
		errs = append(errs, ValidationError{"accepted", "exactly one of accepted or disputed must be set"})
	}
	if r.Accepted {
		if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
			errs = append(errs, ValidationError{"rating", "rating must be between 1 and 5"})
		}
		if r.DisputeReason != "" {
			errs = append(errs, ValidationError{"dispute_reason", "dispute_reason is only valid on a dispute"})
		}
	}
	if r.Disputed {
		if strings.TrimSpace(r.DisputeReason) == "" {
			errs = append(errs, ValidationError{"dispute_reason", "dispute_reason is required on a dispute"})
		}
		if r.Rating != nil {
			errs = append(errs, ValidationError{"rating", "rating is only valid on an acceptance"})
		}
	}
	if len(errs) > 0 {
		return invalidInput(errs)
	}
	return nil
}

// ReviewDisputeRequest is the POST /complaints/{id}/dispute/{signoff_id}/review payload.
type ReviewDisputeRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

func (r *ReviewDisputeRequest) Validate() error {
	if !r.Approve && strings.TrimSpace(r.Reason) == "" {
		return invalidInput([]ValidationError{{"reason", "a reason is required when rejecting a dispute"}})
	}
	return nil
}

// RouteRequest is the POST /complaints/{id}/route payload (admin manual routing).
type RouteRequest struct {
	DepartmentID int64  `json:"department_id"`
	Reason       string `json:"reason"`
}

func (r *RouteRequest) Validate() error {
	var errs []ValidationError
	if r.DepartmentID <= 0 {
		errs = append(errs, ValidationError{"department_id", "department_id is required"})
	}
	if strings.TrimSpace(r.Reason) == "" {
		errs = append(errs, ValidationError{"reason", "a routing reason is required"})
	}
	if len(errs) > 0 {
		return invalidInput(errs)
	}
	return nil
}

// ReassignRequest is the POST /complaints/{id}/reassign payload.
type ReassignRequest struct {
	StaffID int64  `json:"staff_id"`
	Reason  string `json:"reason,omitempty"`
}

func (r *ReassignRequest) Validate() error {
	if r.StaffID <= 0 {
		return invalidInput([]ValidationError{{"staff_id", "staff_id is required"}})
	}
	return nil
}

// IntakeMessage is the channel-shaped POST /intake/webhook payload.
type IntakeMessage struct {
	Channel     string  `json:"channel"`
	Address     string  `json:"address"`
	CitizenID   int64   `json:"citizen_id,omitempty"`
	Text        string  `json:"text"`
	ImageHandle *string `json:"image_handle,omitempty"`
}

func (r *IntakeMessage) Validate() error {
	var errs []ValidationError
	if strings.TrimSpace(r.Channel) == "" {
		errs = append(errs, ValidationError{"channel", "channel is required"})
	}
	if strings.TrimSpace(r.Address) == "" {
		errs = append(errs, ValidationError{"address", "address is required"})
	}
	if strings.TrimSpace(r.Text) == "" && r.ImageHandle == nil {
		errs = append(errs, ValidationError{"text", "a message or image is required"})
	}
	if len(errs) > 0 {
		return invalidInput(errs)
	}
	return nil
}

// IntakeReply is the channel-shaped webhook response.
type IntakeReply struct {
	Text            string `json:"text"`
	Phase           string `json:"phase"`
	ComplaintNumber string `json:"complaint_number,omitempty"`
}

// ComplaintResponse is the external projection of a complaint. Internal row
// ids and versions stay internal; the display number is the public identifier.
type ComplaintResponse struct {
	ComplaintID         int64      `json:"complaint_id"`
	ComplaintNumber     string     `json:"complaint_number"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Location            string     `json:"location"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	CategoryID          *int64     `json:"category_id,omitempty"`
	DepartmentID        *int64     `json:"department_id,omitempty"`
	Priority            string     `json:"priority"`
	AIConfidence        float64    `json:"ai_confidence"`
	AIReasoning         *string    `json:"ai_reasoning,omitempty"`
	NeedsManualRouting  bool       `json:"needs_manual_routing"`
	State               string     `json:"state"`
	AssignedStaffID     *int64     `json:"assigned_staff_id,omitempty"`
	EscalationLevel     string     `json:"escalation_level"`
	SLADays             int        `json:"sla_days"`
	SLADeadline         *time.Time `json:"sla_deadline,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	UpvoteCount         int        `json:"upvote_count"`
	CitizenSatisfaction *int64     `json:"citizen_satisfaction,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// NewComplaintResponse converts the stored entity into its API projection.
func NewComplaintResponse(c *Complaint) *ComplaintResponse {
	resp := &ComplaintResponse{
		ComplaintID:        c.ComplaintID,
		ComplaintNumber:    c.ComplaintNumber,
		Title:              c.Title,
		Description:        c.Description,
		Location:           c.LocationText,
		Priority:           string(c.Priority),
		AIConfidence:       c.AIConfidence,
		NeedsManualRouting: c.NeedsManualRouting,
		State:              string(c.CurrentState),
		EscalationLevel:    c.EscalationLevel.String(),
		SLADays:            c.SLADays,
		UpvoteCount:        c.UpvoteCount,
		CreatedAt:          c.CreatedAt,
	}
	if c.Latitude.Valid {
		resp.Latitude = &c.Latitude.Float64
	}
	if c.Longitude.Valid {
		resp.Longitude = &c.Longitude.Float64
	}
	if c.CategoryID.Valid {
		resp.CategoryID = &c.CategoryID.Int64
	}
	if c.DepartmentID.Valid {
		resp.DepartmentID = &c.DepartmentID.Int64
	}
	if c.AIReasoning.Valid {
		resp.AIReasoning = &c.AIReasoning.String
	}
	if c.AssignedStaffID.Valid {
		resp.AssignedStaffID = &c.AssignedStaffID.Int64
	}
	if c.SLADeadline.Valid {
		resp.SLADeadline = &c.SLADeadline.Time
	}
	if c.StartedAt.Valid {
		resp.StartedAt = &c.StartedAt.Time
	}
	if c.ResolvedAt.Valid {
		resp.ResolvedAt = &c.ResolvedAt.Time
	}
	if c.ClosedAt.Valid {
		resp.ClosedAt = &c.ClosedAt.Time
	}
	if c.CitizenSatisfaction.Valid {
		resp.CitizenSatisfaction = &c.CitizenSatisfaction.Int64
	}
	return resp
}
