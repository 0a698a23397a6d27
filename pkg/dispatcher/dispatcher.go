// Package dispatcher composes the Subscription Set Store, the Queue
// Repository, the Dispatch Core, and the delivery client into the single
// running service, the way pkg/manager composed the teacher's Raft store,
// DNS server, and ingress proxy into one cluster manager.
package dispatcher

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"github.com/cuemby/dispatchd/pkg/config"
	"github.com/cuemby/dispatchd/pkg/delivery"
	"github.com/cuemby/dispatchd/pkg/dispatch"
	"github.com/cuemby/dispatchd/pkg/eventbus"
	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/metrics"
	"github.com/cuemby/dispatchd/pkg/queuestore"
	"github.com/cuemby/dispatchd/pkg/subscription"
	"github.com/cuemby/dispatchd/pkg/types"
)

// Dispatcher is dispatchd's top-level service: one subscription store, one
// queue repository (routed between memory and durable backends), one
// dispatch core, and the metrics collector that samples the store.
type Dispatcher struct {
	cfg config.Config

	Store     *subscription.Store
	Queues    *queuestore.Router
	Core      *dispatch.Dispatcher
	Client    *delivery.Client
	Collector *metrics.Collector
}

// New builds every subsystem and wires them together, but does not start
// any background goroutine; call Start for that.
func New(cfg config.Config) (*Dispatcher, error) {
	memRepo := queuestore.NewMemoryRepository(cfg.RetryInterval)
	durableRepo, err := queuestore.NewDurableRepository(cfg.QueueRootPath, cfg.SegmentMaxBytes, cfg.RetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable queue repository: %w", err)
	}
	router := &queuestore.Router{Memory: memRepo, Durable: durableRepo}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := delivery.NewClient(jar, 10*time.Second)

	store := subscription.New(subscription.Config{
		OwnerURI:        cfg.ServiceOwnerURI,
		PublishEndpoint: cfg.PublishEndpoint,
		Queues:          router,
		CookieJar:       jar,
	})

	core := dispatch.New(dispatch.Config{
		OwnerURI:           cfg.ServiceOwnerURI,
		WorkerConcurrency:  cfg.WorkerConcurrency,
		DefaultMaxFailures: cfg.DefaultMaxFailures,
		Matcher:            store,
		Sets:               store,
		Queues:             router,
		Deliver:            client.Deliver,
	})
	store.Dispatch = core.Dispatch

	return &Dispatcher{
		cfg:       cfg,
		Store:     store,
		Queues:    router,
		Core:      core,
		Client:    client,
		Collector: metrics.NewCollector(store),
	}, nil
}

// Start recovers durable queues, drains any sets they report as pending,
// and launches the dispatch worker pool and the metrics collector.
func (d *Dispatcher) Start() error {
	pending, err := d.Queues.Initialize(d.Core.HandleDelivery)
	if err != nil {
		return fmt.Errorf("failed to initialize queue repository: %w", err)
	}
	for _, set := range pending {
		d.Store.Adopt(set)
	}

	d.Core.Start()
	d.Collector.Start()
	log.Info("dispatcher started")
	return nil
}

// Stop stops the worker pool and the metrics collector, then disposes the
// queue repository. It drains no in-flight deliveries (spec §4.4).
func (d *Dispatcher) Stop() error {
	d.Core.Stop()
	d.Collector.Stop()
	d.Store.Close()
	return d.Queues.Dispose()
}

// Publish normalises a raw inbound event and routes it through the
// dispatch core.
func (d *Dispatcher) Publish(raw eventbus.RawEvent) error {
	event, err := eventbus.Normalize(raw)
	if err != nil {
		return err
	}
	return d.Core.Dispatch(event)
}

// Register, Replace, and Remove expose the Subscription Set Store's
// mutating operations (spec §4.2) to the HTTP front end.
func (d *Dispatcher) Register(location string, doc []byte, accessKey string) (*types.SubscriptionSet, bool, error) {
	return d.Store.Register(location, doc, accessKey)
}

func (d *Dispatcher) Replace(location string, doc []byte, accessKey string) (*types.SubscriptionSet, error) {
	return d.Store.Replace(location, doc, accessKey)
}

func (d *Dispatcher) Remove(location string) bool {
	return d.Store.Remove(location)
}

func (d *Dispatcher) Get(location string) (*types.SubscriptionSet, bool) {
	return d.Store.Get(location)
}

func (d *Dispatcher) All() []*types.SubscriptionSet {
	return d.Store.All()
}

func (d *Dispatcher) CombinedSet() *types.CombinedSet {
	return d.Store.CombinedSet()
}

// HandleDeliveryContext adapts the Dispatch Core's dequeue handler to a
// context-free call for callers that have none available.
func (d *Dispatcher) HandleDeliveryContext(item types.DispatchItem) bool {
	return d.Core.HandleDelivery(context.Background(), item)
}
