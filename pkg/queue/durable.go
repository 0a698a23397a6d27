package queue

import (
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
)

// DurableQueue is the queue variant used for expiring subscriptions (spec
// §4.5/§4.7): every enqueue is fsync'd to a segment file before Enqueue
// returns, and a successful delivery commits the record in the side
// index rather than removing it from disk immediately.
type DurableQueue struct {
	*machine
	backend *durableBackend
}

// NewDurableQueue opens (or recovers) the durable queue rooted at dir. On
// return, any records left uncommitted by a previous process are already
// queued for redelivery in their original enqueue order, per spec §4.6's
// pending_sets / recovery contract.
func NewDurableQueue(location, dir string, segmentMaxBytes int64, retryInterval time.Duration) (*DurableQueue, error) {
	store, err := openSegmentStore(dir, segmentMaxBytes)
	if err != nil {
		return nil, err
	}
	b := &durableBackend{store: store, pending: store.pending}
	return &DurableQueue{
		machine: newMachine(b, retryInterval, location),
		backend: b,
	}, nil
}

// durableBackend adapts segmentStore to the machine's backend contract.
// Like memoryBackend, it assumes every call arrives holding machine.mu.
type durableBackend struct {
	store   *segmentStore
	pending []recoveredEntry
	ioError error
}

func (b *durableBackend) append(item types.DispatchItem) error {
	if b.ioError != nil {
		return b.ioError
	}
	seq, offset, err := b.store.append(item)
	if err != nil {
		b.ioError = err
		return types.ErrEnqueueFailed
	}
	b.pending = append(b.pending, recoveredEntry{segmentSeq: seq, offset: offset, item: item})
	return nil
}

func (b *durableBackend) front() (types.DispatchItem, bool) {
	if len(b.pending) == 0 {
		return types.DispatchItem{}, false
	}
	return b.pending[0].item, true
}

func (b *durableBackend) advance() error {
	if len(b.pending) == 0 {
		return nil
	}
	head := b.pending[0]
	if err := b.store.commit(head.segmentSeq, head.offset); err != nil {
		return err
	}
	b.pending[0] = recoveredEntry{}
	b.pending = b.pending[1:]
	return nil
}

func (b *durableBackend) close() error {
	return b.store.close()
}
