// Package queue implements the Gateway's per-patient serializing event
// queue: one logical FIFO and one worker goroutine per active patient,
// guaranteeing in-order processing of a patient's events while allowing
// different patients to be processed concurrently (spec.md §4.3, §5).
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/internal/channel"
)

// DefaultIdleTimeout is how long a patient worker waits for a new event
// before reclaiming its goroutine (spec.md §4.3).
const DefaultIdleTimeout = 30 * time.Minute

// SlowEventThreshold is the processing duration above which a warning is
// logged (spec.md §4.3).
const SlowEventThreshold = 30 * time.Second

// pollTimeout bounds how long a worker blocks waiting on its channel before
// re-checking for shutdown, so shutdown is always responsive.
const pollTimeout = 5 * time.Second

// Handler processes one event for one patient. It is invoked with the
// worker goroutine owning patientID, so handlers never run concurrently for
// the same patient.
type Handler func(ctx context.Context, patientID string, item any)

// Manager owns one worker per active patient id.
type Manager struct {
	handler     Handler
	idleTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	workers map[string]*patientWorker
	closed  bool
	wg      sync.WaitGroup
}

type patientWorker struct {
	inbox      *channel.TunableChannel[any]
	cancel     context.CancelFunc
	done       chan struct{}
	lastActive atomicTime
}

// atomicTime is a minimal mutex-guarded timestamp, safe for the worker
// goroutine to update and the manager goroutine to read concurrently.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// NewManager returns a Manager that dispatches enqueued items to handler.
func NewManager(handler Handler, idleTimeout time.Duration, logger *zap.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		handler:     handler,
		idleTimeout: idleTimeout,
		logger:      logger,
		workers:     make(map[string]*patientWorker),
	}
}

// Enqueue submits item for patientID, starting a worker for that patient if
// none is currently running. Returns false if the manager is shutting down.
func (m *Manager) Enqueue(patientID string, item any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	w, ok := m.workers[patientID]
	if !ok {
		w = m.startWorker(patientID)
		m.workers[patientID] = w
	}

	if w.inbox.TrySend(item) {
		return true
	}
	// Inbox is momentarily full; block briefly rather than drop, letting
	// the next Tune() grow its capacity if this keeps happening.
	go func() { _ = w.inbox.Send(context.Background(), item) }()
	return true
}

func (m *Manager) startWorker(patientID string) *patientWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &patientWorker{
		inbox:  channel.NewTunableChannel[any](channel.DefaultTunableConfig()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.lastActive.set(time.Now())

	m.wg.Add(1)
	go m.run(ctx, patientID, w)
	return w
}

func (m *Manager) run(ctx context.Context, patientID string, w *patientWorker) {
	defer m.wg.Done()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-w.inbox.Chan():
			start := time.Now()
			m.handler(ctx, patientID, item)
			if elapsed := time.Since(start); elapsed > SlowEventThreshold {
				m.logger.Warn("slow event processing",
					zap.String("patient_id", patientID),
					zap.Duration("elapsed", elapsed),
				)
			}
			w.lastActive.set(time.Now())
		case <-time.After(pollTimeout):
			w.inbox.Tune()
			if m.reclaimIfIdle(patientID, w) {
				return
			}
		}
	}
}

// reclaimIfIdle removes patientID's worker registration if it has been idle
// for longer than idleTimeout and its inbox is currently empty. The worker
// goroutine exits immediately after; a subsequent Enqueue call starts a
// fresh one.
func (m *Manager) reclaimIfIdle(patientID string, w *patientWorker) bool {
	if w.inbox.Len() > 0 {
		return false
	}
	if time.Since(w.lastActive.get()) < m.idleTimeout {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w.inbox.Len() > 0 {
		return false
	}
	delete(m.workers, patientID)
	w.cancel()
	return true
}

// Shutdown cancels every worker and waits (up to ctx's deadline) for them to
// drain in-flight handler calls.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, w := range m.workers {
		w.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActivePatients returns the number of patients with a live worker.
func (m *Manager) ActivePatients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}
