package queuestore

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/queue"
	"github.com/cuemby/dispatchd/pkg/subscription"
	"github.com/cuemby/dispatchd/pkg/types"
)

// DurableRepository backs expiring subscription sets. Its on-disk layout,
// per spec §6, is:
//
//	<queue_root>/<location>.xml                  descriptor document
//	<queue_root>/<url-encoded-location>/         segment files + commit.db
//
// On construction it scans queueRoot for descriptors and returns them from
// Initialize as pending_sets, exactly as spec §4.6 describes.
type DurableRepository struct {
	mu              sync.Mutex
	root            string
	segmentMaxBytes int64
	retryInterval   time.Duration

	queues      map[string]*queue.DurableQueue
	handler     queue.DequeueHandler
	initialized bool
	pending     []*types.SubscriptionSet
}

// NewDurableRepository scans root for existing descriptor documents and
// opens (recovering) a DurableQueue for each one found. The recovered sets
// are held until Initialize is called.
func NewDurableRepository(root string, segmentMaxBytes int64, retryInterval time.Duration) (*DurableRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	r := &DurableRepository{
		root:            root,
		segmentMaxBytes: segmentMaxBytes,
		retryInterval:   retryInterval,
		queues:          make(map[string]*queue.DurableQueue),
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DurableRepository) descriptorPath(location string) string {
	return filepath.Join(r.root, encodeLocation(location)+".xml")
}

func (r *DurableRepository) dataDir(location string) string {
	return filepath.Join(r.root, encodeLocation(location))
}

// encodeLocation makes a subscription-set location filename-safe. It is
// the inverse of url.PathUnescape.
func encodeLocation(location string) string {
	return url.PathEscape(location)
}

func decodeLocation(encoded string) (string, error) {
	return url.PathUnescape(encoded)
}

func (r *DurableRepository) scan() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		encoded := strings.TrimSuffix(e.Name(), ".xml")
		location, err := decodeLocation(encoded)
		if err != nil {
			log.Logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping descriptor with unparseable location")
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.root, e.Name()))
		if err != nil {
			log.Logger.Warn().Err(err).Str("location", location).Msg("failed to read descriptor, skipping")
			continue
		}
		set, err := subscription.ParseDocument(data)
		if err != nil {
			log.Logger.Warn().Err(err).Str("location", location).Msg("failed to parse descriptor, skipping")
			continue
		}
		set.Location = location

		q, err := queue.NewDurableQueue(location, r.dataDir(location), r.segmentMaxBytes, r.retryInterval)
		if err != nil {
			log.Logger.Warn().Err(err).Str("location", location).Msg("failed to recover durable queue, skipping")
			continue
		}
		r.queues[location] = q
		r.pending = append(r.pending, set)
	}
	return nil
}

func (r *DurableRepository) RegisterOrUpdate(set *types.SubscriptionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := subscription.SerializeDocument(set)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.descriptorPath(set.Location), doc, 0o644); err != nil {
		return err
	}

	if _, ok := r.queues[set.Location]; ok {
		return nil
	}

	q, err := queue.NewDurableQueue(set.Location, r.dataDir(set.Location), r.segmentMaxBytes, r.retryInterval)
	if err != nil {
		return err
	}
	if r.handler != nil {
		q.SetDequeueHandler(r.handler)
	}
	r.queues[set.Location] = q
	return nil
}

func (r *DurableRepository) Delete(set *types.SubscriptionSet) error {
	r.mu.Lock()
	q, ok := r.queues[set.Location]
	delete(r.queues, set.Location)
	r.mu.Unlock()

	if ok {
		if err := q.Dispose(); err != nil {
			log.Logger.Warn().Err(err).Str("location", set.Location).Msg("error disposing durable queue")
		}
	}
	_ = os.Remove(r.descriptorPath(set.Location))
	_ = os.RemoveAll(r.dataDir(set.Location))
	return nil
}

func (r *DurableRepository) Get(location string) (queue.Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[location]
	return q, ok
}

func (r *DurableRepository) Initialize(handler queue.DequeueHandler) ([]*types.SubscriptionSet, error) {
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
	pending := r.pending
	r.pending = nil
	return pending, nil
}

func (r *DurableRepository) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for loc, q := range r.queues {
		if err := q.Dispose(); err != nil {
			log.Logger.Warn().Err(err).Str("location", loc).Msg("error disposing durable queue")
		}
	}
	r.queues = make(map[string]*queue.DurableQueue)
	return nil
}
