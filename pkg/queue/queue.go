// Package queue implements the per-subscriber dispatch queue described in
// spec §4.5: one queue per expiring subscription, strictly serial delivery
// with retry, backoff, and a failure window — plus the durable,
// segmented on-disk record format described in spec §4.7.
package queue

import (
	"context"
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
)

// DequeueHandler performs the actual delivery of an item (an HTTP POST in
// production) and reports whether it succeeded. It is supplied once, via
// SetDequeueHandler; a queue is idle until a handler is attached.
type DequeueHandler func(ctx context.Context, item types.DispatchItem) bool

// Queue is the contract shared by the memory and durable variants.
type Queue interface {
	// Enqueue appends item to the tail of the queue. If a handler is
	// attached and the queue is idle, delivery begins immediately.
	Enqueue(item types.DispatchItem) error

	// SetDequeueHandler installs the delivery function. Calling it again
	// replaces the handler; it does not affect in-flight delivery.
	SetDequeueHandler(handler DequeueHandler)

	// FailureWindow returns how long delivery has been failing
	// continuously, or zero if the queue is not currently in a failure
	// streak.
	FailureWindow() time.Duration

	// Dispose releases the queue's resources. The durable variant stops
	// accepting work and closes its files.
	Dispose() error
}

// state is the per-queue delivery state machine (spec §4.5).
type state int

const (
	stateIdle state = iota
	stateDelivering
	stateBackoff
	stateDisposed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDelivering:
		return "delivering"
	case stateBackoff:
		return "backoff"
	case stateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
