package worker

import (
	"context"
	"log"
	"time"

	"jansunwai/notification"
)

// notificationBatchSize bounds one delivery pass.
const notificationBatchSize = 50

// NotificationWorker drains the outbound notification queue asynchronously.
type NotificationWorker struct {
	dispatcher *notification.Dispatcher
	interval   time.Duration
	stopChan   chan struct{}
	running    bool
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(dispatcher *notification.Dispatcher, interval time.Duration) *NotificationWorker {
	return &NotificationWorker{
		dispatcher: dispatcher,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start starts the notification worker in its own goroutine.
func (w *NotificationWorker) Start() {
	if w.running {
		log.Println("Notification worker is already running")
		return
	}
	w.running = true
	log.Printf("Notification worker started (interval: %v)", w.interval)
	go w.run()
}

// Stop stops the notification worker
func (w *NotificationWorker) Stop() {
	if !w.running {
		return
	}
	log.Println("Stopping notification worker...")
	close(w.stopChan)
	w.running = false
	log.Println("Notification worker stopped")
}

func (w *NotificationWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.dispatch()
		case <-w.stopChan:
			return
		}
	}
}

func (w *NotificationWorker) dispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	sent, err := w.dispatcher.DispatchPending(ctx, notificationBatchSize)
	if err != nil {
		log.Printf("[NOTIFY] Dispatch pass failed: %v", err)
		return
	}
	if sent > 0 {
		log.Printf("[NOTIFY] Dispatched %d notifications", sent)
	}
}
