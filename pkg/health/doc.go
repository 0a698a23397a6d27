/*
Package health probes whether a subscriber endpoint is reachable.

The "dispatchd probe" CLI command uses this so an operator can learn, before
registering a subscription set, that a subscriber is unreachable, instead of
the dispatch core spending a delivery attempt, a retry, and a failure count
discovering the same thing (spec §4.5's MaxFailures eviction). Nothing else
in dispatchd calls it: it does not participate in the dispatch or retry path —
a registered subscriber that happens to be down still goes through the
normal queue/backoff machinery in pkg/queue.

# Checkers

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

HTTPChecker issues a request against a subscriber's delivery endpoint and
classifies the response by status code range, 200-399 by default. That is
wider than the 2xx/304 success rule pkg/delivery applies to a real dispatch
attempt (spec §6): any 3xx counts as reachable. It consumes no delivery and
does not touch the queue. TCPChecker is a
cheaper reachability check for deployments that front the same endpoint
with a plain TCP load balancer.

# Status

Status applies hysteresis over repeated checks (N consecutive failures
before reporting unhealthy) so a CLI operator polling a flaky subscriber
doesn't see it flap between healthy/unhealthy on every check.
*/
package health
