package queuestore

import (
	"github.com/cuemby/dispatchd/pkg/queue"
	"github.com/cuemby/dispatchd/pkg/types"
)

// Router dispatches to a MemoryRepository or a DurableRepository depending
// on whether a set carries an expiration, presenting both as the single
// Repository the Subscription Set Store talks to (spec §4.2's
// "non-expiring uses memory queues; expiring uses durable queues").
type Router struct {
	Memory  *MemoryRepository
	Durable *DurableRepository
}

func (r *Router) backendFor(set *types.SubscriptionSet) Repository {
	if set.HasExpiration {
		return r.Durable
	}
	return r.Memory
}

func (r *Router) RegisterOrUpdate(set *types.SubscriptionSet) error {
	return r.backendFor(set).RegisterOrUpdate(set)
}

func (r *Router) Delete(set *types.SubscriptionSet) error {
	return r.backendFor(set).Delete(set)
}

// Get checks the memory repository first, then the durable one; a location
// is registered in exactly one, never both.
func (r *Router) Get(location string) (queue.Queue, bool) {
	if q, ok := r.Memory.Get(location); ok {
		return q, ok
	}
	return r.Durable.Get(location)
}

// Initialize wires handler into both backends and merges their pending
// sets (the memory backend's is always empty, per spec §4.6).
func (r *Router) Initialize(handler queue.DequeueHandler) ([]*types.SubscriptionSet, error) {
	memPending, err := r.Memory.Initialize(handler)
	if err != nil {
		return nil, err
	}
	durPending, err := r.Durable.Initialize(handler)
	if err != nil {
		return nil, err
	}
	return append(memPending, durPending...), nil
}

func (r *Router) Dispose() error {
	if err := r.Memory.Dispose(); err != nil {
		return err
	}
	return r.Durable.Dispose()
}
