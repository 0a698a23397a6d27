/*
Package metrics provides Prometheus metrics collection and exposition for
dispatchd.

Metrics are registered at package init and exposed over HTTP via Handler()
for scraping by a Prometheus server. Collector periodically samples the
Subscription Set Store (set and subscription counts, combined-set
version); the Dispatch Core and delivery client update their own
counters/histograms inline as events flow through.

# Categories

  - Subscription Set Store: SubscriptionSetsTotal, SubscriptionsTotal,
    CombinedSetVersion, CombinedSetRebuildDuration
  - Dispatch Core: EventsDispatchedTotal, DispatchQueueDepth, DispatchDuration
  - Delivery: DeliveryAttemptsTotal, DeliveryDuration, SubscriptionSetsEvictedTotal
  - Durable queues: DurableQueueBacklog, DurableQueueBytes
  - HTTP front end: HTTPRequestsTotal, HTTPRequestDuration

# Health

HealthChecker (health.go) tracks readiness of subscription_store,
queue_repository, and dispatch_core independently of the Prometheus
metrics above. LivenessHandler backs the dispatcher's /healthz route and
does not consult the component registry; HealthHandler and ReadyHandler
report the registry but are not mounted by pkg/frontend.
*/
package metrics
