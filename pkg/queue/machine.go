package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/rs/zerolog"
)

// backend is the storage behind a machine: where pending items live and how
// a successful delivery is committed. MemoryQueue and DurableQueue are thin
// adapters over, respectively, an in-memory slice and the segmented durable
// log — the delivery discipline in machine is shared by both, per spec §9's
// note about collapsing the source's several duplicate queue variants into
// one coherent design.
type backend interface {
	// append adds item to the tail.
	append(item types.DispatchItem) error
	// front returns the current head item, if any, without removing it.
	front() (types.DispatchItem, bool)
	// advance commits the current head item and removes it.
	advance() error
	// close releases backend resources.
	close() error
}

// machine implements the Idle/Delivering/Backoff/Disposed state machine
// from spec §4.5, parameterized over a backend.
type machine struct {
	mu            sync.Mutex
	st            state
	backend       backend
	handler       DequeueHandler
	retryInterval time.Duration
	failureStart  time.Time
	timer         *time.Timer
	logger        zerolog.Logger
}

func newMachine(b backend, retryInterval time.Duration, location string) *machine {
	if retryInterval <= 0 {
		retryInterval = types.DefaultRetryInterval
	}
	return &machine{
		backend:       b,
		retryInterval: retryInterval,
		logger:        log.WithLocation(location),
	}
}

func (m *machine) Enqueue(item types.DispatchItem) error {
	m.mu.Lock()
	if m.st == stateDisposed {
		m.mu.Unlock()
		return types.ErrQueueDisposed
	}
	if err := m.backend.append(item); err != nil {
		// An append failure is only ever an unrecoverable backend I/O error
		// (memoryBackend.append never fails) — per spec §7 the queue is
		// disposed rather than left in a state that keeps failing silently.
		m.st = stateDisposed
		if m.timer != nil {
			m.timer.Stop()
		}
		m.mu.Unlock()
		_ = m.backend.close()
		return err
	}
	shouldStart := m.st == stateIdle && m.handler != nil
	if shouldStart {
		m.st = stateDelivering
	}
	m.mu.Unlock()

	if shouldStart {
		go m.deliverLoop()
	}
	return nil
}

func (m *machine) SetDequeueHandler(handler DequeueHandler) {
	m.mu.Lock()
	m.handler = handler
	_, hasItem := m.backend.front()
	shouldStart := hasItem && (m.st == stateIdle)
	if shouldStart {
		m.st = stateDelivering
	}
	m.mu.Unlock()

	if shouldStart {
		go m.deliverLoop()
	}
}

func (m *machine) FailureWindow() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failureStart.IsZero() {
		return 0
	}
	return time.Since(m.failureStart)
}

func (m *machine) Dispose() error {
	m.mu.Lock()
	m.st = stateDisposed
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	return m.backend.close()
}

// deliverLoop drives one or more deliveries until the backend is drained or
// the queue enters Backoff/Disposed. It always runs on its own goroutine so
// Enqueue and the retry timer never block on handler invocation.
func (m *machine) deliverLoop() {
	for {
		m.mu.Lock()
		if m.st != stateDelivering {
			m.mu.Unlock()
			return
		}
		item, ok := m.backend.front()
		if !ok {
			m.st = stateIdle
			m.mu.Unlock()
			return
		}
		handler := m.handler
		m.mu.Unlock()

		if handler == nil {
			return
		}

		success := handler(context.Background(), item)

		m.mu.Lock()
		if m.st == stateDisposed {
			m.mu.Unlock()
			return
		}
		if success {
			m.failureStart = time.Time{}
			if err := m.backend.advance(); err != nil {
				m.logger.Warn().Err(err).Msg("failed to commit delivered item")
			}
			if _, more := m.backend.front(); more {
				m.st = stateDelivering
				m.mu.Unlock()
				continue
			}
			m.st = stateIdle
			m.mu.Unlock()
			return
		}

		if m.failureStart.IsZero() {
			m.failureStart = time.Now()
		}
		m.st = stateBackoff
		interval := m.retryInterval
		m.timer = time.AfterFunc(interval, m.fireRetry)
		m.mu.Unlock()
		return
	}
}

func (m *machine) fireRetry() {
	m.mu.Lock()
	if m.st != stateBackoff {
		m.mu.Unlock()
		return
	}
	m.st = stateDelivering
	m.mu.Unlock()

	m.deliverLoop()
}
