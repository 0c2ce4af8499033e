// Package notification queues and dispatches outbound events. Delivery is
// best-effort: a failed emit never fails the operation that produced it.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"jansunwai/service"
	"jansunwai/utils"
)

// maxAttempts before a queued notification is parked as failed.
const maxAttempts = 5

// Status of a queued notification.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Queued is one row of the outbound queue.
type Queued struct {
	NotificationID int64         `db:"notification_id" json:"notification_id"`
	Event          service.Event `json:"event"`
	Status         string        `db:"status" json:"status"`
	Attempts       int           `db:"attempts" json:"attempts"`
	LastError      string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	SentAt         sql.NullTime  `db:"sent_at" json:"sent_at"`
}

// Queue persists events for asynchronous delivery and implements
// service.EventEmitter.
type Queue struct {
	db    *sql.DB
	clock utils.Clock
}

// NewQueue creates the notification queue.
func NewQueue(db *sql.DB, clock utils.Clock) *Queue {
	return &Queue{db: db, clock: clock}
}

// Emit enqueues an event. Errors are logged, never propagated; notification
// loss must not fail a complaint mutation.
func (q *Queue) Emit(ctx context.Context, e service.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("[NOTIFY] Failed to encode event for complaint %d: %v", e.ComplaintID, err)
		return
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO notifications (complaint_id, kind, payload, status, attempts, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		e.ComplaintID, e.Kind, payload, StatusPending, q.clock.Now())
	if err != nil {
		log.Printf("[NOTIFY] Failed to enqueue %s event for complaint %d: %v", e.Kind, e.ComplaintID, err)
	}
}

// Pending fetches up to limit undelivered notifications, oldest first.
func (q *Queue) Pending(ctx context.Context, limit int) ([]Queued, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT notification_id, payload, status, attempts, COALESCE(last_error, ''), created_at, sent_at
		FROM notifications
		WHERE status = ? AND attempts < ?
		ORDER BY created_at ASC, notification_id ASC
		LIMIT ?`, StatusPending, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	var out []Queued
	for rows.Next() {
		var n Queued
		var payload []byte
		if err := rows.Scan(&n.NotificationID, &payload, &n.Status, &n.Attempts,
			&n.LastError, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(payload, &n.Event); err != nil {
			log.Printf("[NOTIFY] Skipping undecodable notification %d: %v", n.NotificationID, err)
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkSent records successful delivery.
func (q *Queue) MarkSent(ctx context.Context, notificationID int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, sent_at = ? WHERE notification_id = ?`,
		StatusSent, q.clock.Now(), notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt count; past maxAttempts the row is parked.
func (q *Queue) MarkFailed(ctx context.Context, notificationID int64, cause error) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1, last_error = ?,
		    status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
		WHERE notification_id = ?`,
		cause.Error(), maxAttempts, StatusFailed, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// Sender delivers one event over a channel transport.
type Sender interface {
	Send(ctx context.Context, e service.Event) error
}

// LogSender is the default transport: it writes deliveries to the log. Real
// channel transports (SMS, messaging apps) plug in behind the same interface.
type LogSender struct{}

func (LogSender) Send(_ context.Context, e service.Event) error {
	log.Printf("[NOTIFY] %s complaint=%s recipient_role=%s recipient_user=%d citizen=%d: %s",
		e.Kind, e.ComplaintNumber, e.RecipientRole, e.RecipientUserID, e.CitizenID, e.Message)
	return nil
}

// Dispatcher drains the queue through a sender.
type Dispatcher struct {
	queue  *Queue
	sender Sender
}

// NewDispatcher wires the queue drainer.
func NewDispatcher(queue *Queue, sender Sender) *Dispatcher {
	return &Dispatcher{queue: queue, sender: sender}
}

// DispatchPending delivers one batch and returns the number sent.
func (d *Dispatcher) DispatchPending(ctx context.Context, batchSize int) (int, error) {
	pending, err := d.queue.Pending(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range pending {
		if err := d.sender.Send(ctx, n.Event); err != nil {
			log.Printf("[NOTIFY] Delivery of notification %d failed: %v", n.NotificationID, err)
			if merr := d.queue.MarkFailed(ctx, n.NotificationID, err); merr != nil {
				log.Printf("[NOTIFY] %v", merr)
			}
			continue
		}
		if err := d.queue.MarkSent(ctx, n.NotificationID); err != nil {
			log.Printf("[NOTIFY] %v", err)
			continue
		}
		sent++
	}
	return sent, nil
}
