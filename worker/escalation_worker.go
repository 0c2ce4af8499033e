package worker

import (
	"context"
	"log"
	"time"

	"jansunwai/service"
)

// EscalationWorker drives the SLA scheduler: each tick it runs the escalation
// pass and the auto-close sweep.
type EscalationWorker struct {
	escalationService *service.EscalationService
	interval          time.Duration
	stopChan          chan struct{}
	running           bool
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(escalationService *service.EscalationService, interval time.Duration) *EscalationWorker {
	return &EscalationWorker{
		escalationService: escalationService,
		interval:          interval,
		stopChan:          make(chan struct{}),
	}
}

// Start starts the escalation worker in its own goroutine.
func (w *EscalationWorker) Start() {
	if w.running {
		log.Println("Escalation worker is already running")
		return
	}
	w.running = true
	log.Printf("Escalation worker started (interval: %v)", w.interval)
	go w.run()
}

// Stop stops the escalation worker
func (w *EscalationWorker) Stop() {
	if !w.running {
		return
	}
	log.Println("Stopping escalation worker...")
	close(w.stopChan)
	w.running = false
	log.Println("Escalation worker stopped")
}

func (w *EscalationWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Process immediately on start
	w.tick()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.stopChan:
			return
		}
	}
}

// tick runs one scheduler pass. A failing pass is logged and retried on the
// next tick; ticks are idempotent.
func (w *EscalationWorker) tick() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	results, err := w.escalationService.Tick(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Escalation pass failed: %v", err)
	} else if len(results) > 0 {
		log.Printf("[SCHEDULER] Escalation pass complete: %d complaints escalated in %v", len(results), time.Since(start))
	}

	closed, err := w.escalationService.AutoCloseTick(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Auto-close pass failed: %v", err)
	} else if closed > 0 {
		log.Printf("[SCHEDULER] Auto-close pass complete: %d complaints closed", closed)
	}
}
