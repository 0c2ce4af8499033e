package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansunwai/service"
	"jansunwai/utils"
)

func newMockQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clock := utils.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	return NewQueue(db, clock), mock
}

func TestEmitNeverPropagatesFailure(t *testing.T) {
	queue, mock := newMockQueue(t)
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(errors.New("connection reset"))

	// Emit has no error return; a broken queue must not panic either.
	queue.Emit(context.Background(), service.Event{
		ComplaintID: 9, ComplaintNumber: "GRV-2026-00009",
		Kind: service.EventEscalated, Message: "escalated to staff",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingSkipsUndecodablePayloads(t *testing.T) {
	queue, mock := newMockQueue(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"notification_id", "payload", "status", "attempts", "last_error", "created_at", "sent_at"}).
		AddRow(1, []byte(`{"complaint_id":9,"complaint_number":"GRV-2026-00009","kind":"assigned","message":"assigned"}`), StatusPending, 0, "", now, nil).
		AddRow(2, []byte(`not-json`), StatusPending, 1, "boom", now, nil)
	mock.ExpectQuery("SELECT notification_id, payload").WillReturnRows(rows)

	pending, err := queue.Pending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.EqualValues(t, 1, pending[0].NotificationID)
	assert.Equal(t, "GRV-2026-00009", pending[0].Event.ComplaintNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPendingMarksOutcomes(t *testing.T) {
	queue, mock := newMockQueue(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"notification_id", "payload", "status", "attempts", "last_error", "created_at", "sent_at"}).
		AddRow(1, []byte(`{"complaint_id":9,"kind":"assigned","message":"ok"}`), StatusPending, 0, "", now, nil).
		AddRow(2, []byte(`{"complaint_id":10,"kind":"escalated","message":"fails"}`), StatusPending, 2, "", now, nil)
	mock.ExpectQuery("SELECT notification_id, payload").WillReturnRows(rows)
	// Notification 1 is delivered and marked sent; 2 fails and its attempt count bumps.
	mock.ExpectExec("UPDATE notifications SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &stubSender{failComplaint: 10}
	dispatcher := NewDispatcher(queue, sender)
	sent, err := dispatcher.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, sender.delivered, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubSender struct {
	failComplaint int64
	delivered     []service.Event
}

func (s *stubSender) Send(_ context.Context, e service.Event) error {
	s.delivered = append(s.delivered, e)
	if e.ComplaintID == s.failComplaint {
		return errors.New("channel unavailable")
	}
	return nil
}
