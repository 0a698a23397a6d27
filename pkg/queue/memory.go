package queue

import (
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
)

// MemoryQueue is the non-durable queue variant used for subscriptions with
// no expiration (spec §4.5): items live only in process memory and are
// lost if the process restarts, which is acceptable because a
// non-expiring subscription's owner is assumed to be reachable whenever
// dispatchd is.
type MemoryQueue struct {
	*machine
	backend *memoryBackend
}

// NewMemoryQueue creates an empty in-memory queue for the given location,
// used only for logging context.
func NewMemoryQueue(location string, retryInterval time.Duration) *MemoryQueue {
	b := &memoryBackend{}
	return &MemoryQueue{
		machine: newMachine(b, retryInterval, location),
		backend: b,
	}
}

// memoryBackend is a plain FIFO slice. It has no locking of its own: every
// call arrives already holding machine.mu.
type memoryBackend struct {
	items []types.DispatchItem
}

func (b *memoryBackend) append(item types.DispatchItem) error {
	b.items = append(b.items, item)
	return nil
}

func (b *memoryBackend) front() (types.DispatchItem, bool) {
	if len(b.items) == 0 {
		return types.DispatchItem{}, false
	}
	return b.items[0], true
}

func (b *memoryBackend) advance() error {
	if len(b.items) == 0 {
		return nil
	}
	b.items[0] = types.DispatchItem{}
	b.items = b.items[1:]
	return nil
}

func (b *memoryBackend) close() error {
	b.items = nil
	return nil
}
