// Package queuestore implements the Queue Repository (spec §4.6): the
// lifecycle manager that creates, looks up, and tears down per-subscriber
// queues on behalf of the Subscription Set Store.
package queuestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/queue"
	"github.com/cuemby/dispatchd/pkg/types"
)

// Repository is the contract shared by the memory and durable variants.
type Repository interface {
	// RegisterOrUpdate creates the queue for set.Location if absent. The
	// durable variant also (re)writes the set's descriptor document.
	RegisterOrUpdate(set *types.SubscriptionSet) error

	// Delete removes the queue for set.Location, deleting on-disk state
	// for the durable variant.
	Delete(set *types.SubscriptionSet) error

	// Get looks up the queue registered at location.
	Get(location string) (queue.Queue, bool)

	// Initialize attaches handler to every existing queue and returns the
	// sets recovered from disk but not yet re-registered by the caller.
	// A second call is rejected with ErrAlreadyInitialized.
	Initialize(handler queue.DequeueHandler) ([]*types.SubscriptionSet, error)

	// Dispose releases every queue the repository manages.
	Dispose() error
}

// ErrAlreadyInitialized is returned by a second call to Initialize.
var ErrAlreadyInitialized = fmt.Errorf("queuestore: already initialized")

// MemoryRepository backs non-expiring subscription sets: every queue it
// creates is a queue.MemoryQueue, and Initialize never recovers anything
// (spec §4.6: "for the memory variant, pending_sets is always empty").
type MemoryRepository struct {
	mu            sync.Mutex
	queues        map[string]*queue.MemoryQueue
	retryInterval time.Duration
	handler       queue.DequeueHandler
	initialized   bool
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(retryInterval time.Duration) *MemoryRepository {
	return &MemoryRepository{
		queues:        make(map[string]*queue.MemoryQueue),
		retryInterval: retryInterval,
	}
}

func (r *MemoryRepository) RegisterOrUpdate(set *types.SubscriptionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[set.Location]; ok {
		return nil
	}
	q := queue.NewMemoryQueue(set.Location, r.retryInterval)
	if r.handler != nil {
		q.SetDequeueHandler(r.handler)
	}
	r.queues[set.Location] = q
	return nil
}

func (r *MemoryRepository) Delete(set *types.SubscriptionSet) error {
	r.mu.Lock()
	q, ok := r.queues[set.Location]
	delete(r.queues, set.Location)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return q.Dispose()
}

func (r *MemoryRepository) Get(location string) (queue.Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[location]
	return q, ok
}

func (r *MemoryRepository) Initialize(handler queue.DequeueHandler) ([]*types.SubscriptionSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil, ErrAlreadyInitialized
	}
	r.initialized = true
	r.handler = handler
	for _, q := range r.queues {
		q.SetDequeueHandler(handler)
	}
	return nil, nil
}

func (r *MemoryRepository) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for loc, q := range r.queues {
		if err := q.Dispose(); err != nil {
			log.Logger.Warn().Err(err).Str("location", loc).Msg("error disposing memory queue")
		}
	}
	r.queues = make(map[string]*queue.MemoryQueue)
	return nil
}
