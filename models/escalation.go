package models

import (
	"time"
)

// Reserved reason strings for SYSTEM-actor audit entries. The scheduler only
// ever writes one of these; tests assert the enumeration.
const (
	ReasonSLABreach          = "sla_deadline_breached"
	ReasonLevelTimerElapsed  = "escalation_level_timer_elapsed"
	ReasonAutoCloseElapsed   = "auto_close_window_elapsed"
	ReasonSchedulerRetry     = "scheduler_retry_exhausted"
	ReasonDisputeApproved    = "dispute_approved_reopen"
)

// EscalationEvent is the materialized view over escalation audit entries,
// kept for quick per-complaint lookups.
type EscalationEvent struct {
	EscalationID int64           `db:"escalation_id" json:"escalation_id"`
	ComplaintID  int64           `db:"complaint_id" json:"complaint_id"`
	FromLevel    EscalationLevel `db:"from_level" json:"from_level"`
	ToLevel      EscalationLevel `db:"to_level" json:"to_level"`
	TriggeredAt  time.Time       `db:"triggered_at" json:"triggered_at"`
	Reason       string          `db:"reason" json:"reason"`
	NotifiedRole Role            `db:"notified_role" json:"notified_role"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// EscalationLadder holds the overdue thresholds (in days) that map lateness to
// a required escalation level.
type EscalationLadder struct {
	L1Days float64 // beyond this: dept_head
	L2Days float64 // beyond this: admin
	L3Days float64 // beyond this: commissioner
}

// DefaultLadder matches the committed defaults: 1 / 3 / 7 days overdue.
var DefaultLadder = EscalationLadder{L1Days: 1, L2Days: 3, L3Days: 7}

// RequiredLevel maps days overdue to the level the complaint must be surfaced
// at. The scheduler still advances one step per tick; this only bounds the
// target.
func (l EscalationLadder) RequiredLevel(daysOverdue float64) EscalationLevel {
	switch {
	case daysOverdue <= 0:
		return EscalationNone
	case daysOverdue <= l.L1Days:
		return EscalationStaff
	case daysOverdue <= l.L2Days:
		return EscalationDeptHead
	case daysOverdue <= l.L3Days:
		return EscalationAdmin
	default:
		return EscalationCommissioner
	}
}

// EscalationResult reports the outcome of processing one candidate in a tick.
type EscalationResult struct {
	ComplaintID int64           `json:"complaint_id"`
	Escalated   bool            `json:"escalated"`
	FromLevel   EscalationLevel `json:"from_level"`
	ToLevel     EscalationLevel `json:"to_level"`
	Reason      string          `json:"reason"`
	ProcessedAt time.Time       `json:"processed_at"`
}
