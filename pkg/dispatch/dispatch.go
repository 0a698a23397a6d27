// Package dispatch implements the Dispatch Core (spec §4.4): the single
// dispatch(event) entry point, its bounded worker pool, listener
// resolution, recipient narrowing, and the non-expiring failure-counter
// bookkeeping.
package dispatch

import (
	"context"
	"sync"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/metrics"
	"github.com/cuemby/dispatchd/pkg/queue"
	"github.com/cuemby/dispatchd/pkg/types"
)

// MatchSource is the slice of pkg/subscription.Store the dispatch core
// needs to resolve listeners for an event.
type MatchSource interface {
	MatchChannelAndResource(channelURI, resourceURI string) map[*types.Subscription]struct{}
	MatchRecipients(recipients []string) map[*types.Subscription]struct{}
}

// SetLookup is the slice of pkg/subscription.Store needed to evict a
// non-expiring set once it exceeds its failure budget.
type SetLookup interface {
	Get(location string) (*types.SubscriptionSet, bool)
	Remove(location string) bool
}

// QueueLookup is the slice of pkg/queuestore.Repository needed to find the
// per-location queue a resolved subscription delivers through.
type QueueLookup interface {
	Get(location string) (queue.Queue, bool)
}

// Config configures a Dispatcher.
type Config struct {
	OwnerURI          string
	WorkerConcurrency int
	DefaultMaxFailures int
	Matcher           MatchSource
	Sets              SetLookup
	Queues            QueueLookup
	Deliver           DeliverFunc
}

// DeliverFunc performs the outbound HTTP POST for a dispatch item and
// reports whether the peer accepted it (2xx or 304).
type DeliverFunc func(ctx context.Context, item types.DispatchItem) bool

// Dispatcher is the Dispatch Core. Start must be called once before
// Dispatch will make forward progress; Stop drains no in-flight events
// (spec §4.4: "shutdown...drains no in-flight events").
type Dispatcher struct {
	ownerURI    string
	workerCount int
	defaultMax  int

	matcher MatchSource
	sets    SetLookup
	queues  QueueLookup
	deliver DeliverFunc

	eventCh chan *types.DispatcherEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup

	failureMu     sync.Mutex
	failureCounts map[string]int
}

// New constructs a Dispatcher. The dispatch channel's capacity is
// worker_concurrency*4, per SPEC_FULL.md §4.4.
func New(cfg Config) *Dispatcher {
	workers := cfg.WorkerConcurrency
	if workers <= 0 {
		workers = types.DefaultWorkerConcurrency
	}
	defaultMax := cfg.DefaultMaxFailures
	if defaultMax <= 0 {
		defaultMax = types.DefaultMaxFailures
	}
	return &Dispatcher{
		ownerURI:      cfg.OwnerURI,
		workerCount:   workers,
		defaultMax:    defaultMax,
		matcher:       cfg.Matcher,
		sets:          cfg.Sets,
		queues:        cfg.Queues,
		deliver:       cfg.Deliver,
		eventCh:       make(chan *types.DispatcherEvent, workers*4),
		stopCh:        make(chan struct{}),
		failureCounts: make(map[string]int),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.workerLoop()
	}
}

// Stop signals every worker to exit once it finishes its current event.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// Dispatch enqueues event for processing by the worker pool. It never
// blocks: a full channel, or a Dispatcher that has been stopped, returns
// ErrEnqueueFailed.
func (d *Dispatcher) Dispatch(event *types.DispatcherEvent) error {
	if event.HasVia(d.ownerURI) {
		return types.ErrLoopDetected
	}
	select {
	case <-d.stopCh:
		return types.ErrEnqueueFailed
	default:
	}
	event = event.WithVia(d.ownerURI)

	select {
	case d.eventCh <- event:
		return nil
	default:
		return types.ErrEnqueueFailed
	}
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.eventCh:
			d.process(event)
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) process(event *types.DispatcherEvent) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchDuration)

	var matches map[*types.Subscription]struct{}
	if len(event.Recipients) > 0 {
		matches = d.matcher.MatchRecipients(event.Recipients)
	} else {
		matches = d.matcher.MatchChannelAndResource(event.ChannelURI, event.ResourceURI)
	}
	if len(matches) == 0 {
		return
	}

	groups := make(map[string][]*types.Subscription)
	for sub := range matches {
		groups[sub.DestinationURI] = append(groups[sub.DestinationURI], sub)
	}

	for destination, subs := range groups {
		itemEvent := event
		if len(event.Recipients) > 0 {
			union := recipientUnion(subs)
			intersection := intersect(event.Recipients, union)
			if len(intersection) == 0 {
				continue
			}
			itemEvent = event.WithRecipients(intersection)
		}

		for _, sub := range subs {
			d.deliverToSubscription(destination, itemEvent, sub)
		}
	}
}

func (d *Dispatcher) deliverToSubscription(destination string, event *types.DispatcherEvent, sub *types.Subscription) {
	q, ok := d.queues.Get(sub.Location)
	if !ok {
		log.WithLocation(sub.Location).Warn().Msg("no queue registered for matched subscription, dropping item")
		return
	}

	item := types.DispatchItem{DestinationURI: destination, Event: event, Location: sub.Location}
	if err := q.Enqueue(item); err != nil {
		log.WithLocation(sub.Location).Warn().Err(err).Msg("failed to enqueue dispatch item")
	}
}

// HandleDelivery is installed as the dequeue handler on every queue the
// repository manages. It performs the POST and, for non-expiring sets
// only, applies the failure-counter bookkeeping from spec §4.4.
func (d *Dispatcher) HandleDelivery(ctx context.Context, item types.DispatchItem) bool {
	success := d.deliver(ctx, item)

	set, ok := d.sets.Get(item.Location)
	if !ok || set.HasExpiration {
		// Expiring sets: retries/backoff live entirely in the queue; the
		// failure counter is bypassed, per spec §4.4.
		return success
	}

	if success {
		d.clearFailures(item.Location)
		return true
	}

	max := set.MaxFailures
	if max <= 0 {
		max = d.defaultMax
	}
	if d.incrementFailures(item.Location) > max {
		log.WithLocation(item.Location).Warn().Msg("max_failures exceeded, evicting subscription set")
		d.sets.Remove(item.Location)
	}
	// Non-expiring deliveries always report "consumed" so the memory
	// queue advances regardless of outcome (spec §4.4).
	return true
}

func (d *Dispatcher) clearFailures(location string) {
	d.failureMu.Lock()
	delete(d.failureCounts, location)
	d.failureMu.Unlock()
}

func (d *Dispatcher) incrementFailures(location string) int {
	d.failureMu.Lock()
	defer d.failureMu.Unlock()
	d.failureCounts[location]++
	return d.failureCounts[location]
}

func recipientUnion(subs []*types.Subscription) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sub := range subs {
		for _, r := range sub.Recipients {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
