package models

import (
	"time"
)

// ConversationPhase is the intake state machine phase. The service owns phase
// transitions; the language model never decides them.
type ConversationPhase string

const (
	PhaseGreeting             ConversationPhase = "greeting"
	PhaseAwaitingRegistration ConversationPhase = "awaiting_registration"
	PhaseRegisteredIdle       ConversationPhase = "registered_idle"
	PhaseAwaitingIssue        ConversationPhase = "awaiting_issue_description"
	PhaseAwaitingLocation     ConversationPhase = "awaiting_location"
	PhaseAwaitingImage        ConversationPhase = "awaiting_image_optional"
	PhaseReadyToFile          ConversationPhase = "ready_to_file"
	PhaseViewingComplaints    ConversationPhase = "viewing_complaints"
)

// MaxSessionHistory bounds the stored conversation history per session.
const MaxSessionHistory = 20

// SessionMessage is one bounded-history entry.
type SessionMessage struct {
	FromCitizen bool      `json:"from_citizen"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// ComplaintDraft is the partial complaint an intake session accumulates.
type ComplaintDraft struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	ImageHandle string   `json:"image_handle,omitempty"`
}

// ConversationSession is the per-address intake state, keyed by
// channel+address and destroyed on commit, cancel, or expiry.
type ConversationSession struct {
	Channel         string            `json:"channel"`
	Address         string            `json:"address"`
	CitizenID       int64             `json:"citizen_id,omitempty"`
	CitizenName     string            `json:"citizen_name,omitempty"`
	Phase           ConversationPhase `json:"phase"`
	Draft           ComplaintDraft    `json:"draft"`
	ImagePromptSent bool              `json:"image_prompt_sent"`
	History         []SessionMessage  `json:"history,omitempty"`
	LastActivity    time.Time         `json:"last_activity"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// AppendHistory records a message, trimming to the bounded window.
func (s *ConversationSession) AppendHistory(fromCitizen bool, text string, at time.Time) {
	s.History = append(s.History, SessionMessage{FromCitizen: fromCitizen, Text: text, At: at})
	if len(s.History) > MaxSessionHistory {
		s.History = s.History[len(s.History)-MaxSessionHistory:]
	}
}

// ReadyToFile reports whether the draft satisfies the filing invariant:
// non-empty description and a location that survived the vagueness filter.
func (s *ConversationSession) ReadyToFile() bool {
	return s.Draft.Description != "" && s.Draft.Location != ""
}
