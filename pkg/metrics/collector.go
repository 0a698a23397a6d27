package metrics

import (
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
)

// SetSource is the slice of pkg/subscription.Store the collector polls.
type SetSource interface {
	All() []*types.SubscriptionSet
	CombinedSet() *types.CombinedSet
}

// Collector periodically samples the subscription store and publishes
// gauge metrics, on the same ticker/stopCh shape the rest of the codebase
// uses for its background loops.
type Collector struct {
	sets   SetSource
	stopCh chan struct{}
}

// NewCollector creates a metrics collector over sets.
func NewCollector(sets SetSource) *Collector {
	return &Collector{
		sets:   sets,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	sets := c.sets.All()
	SubscriptionSetsTotal.Set(float64(len(sets)))

	var subCount int
	for _, set := range sets {
		subCount += len(set.Subscriptions)
	}
	SubscriptionsTotal.Set(float64(subCount))

	CombinedSetVersion.Set(float64(c.sets.CombinedSet().Version))
}
