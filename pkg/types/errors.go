package types

import "errors"

// Error kinds surfaced synchronously to callers, per spec §7. Delivery
// failures (DeliveryFailed, QueueIOError) are deliberately not part of this
// list: they are never returned from a public operation, only recorded in
// failure counters or left pending on a durable queue.
var (
	ErrMalformedEvent          = errors.New("malformed event")
	ErrMalformedSubscription   = errors.New("malformed subscription")
	ErrOwnerMismatch           = errors.New("owner mismatch")
	ErrExpirationTypeChanged   = errors.New("expiration type changed")
	ErrLoopDetected            = errors.New("loop detected")
	ErrEnqueueFailed           = errors.New("enqueue failed")
	ErrUnsupportedRecordVersion = errors.New("unsupported record version")
	ErrQueueDisposed           = errors.New("queue disposed")
	ErrNotFound                = errors.New("not found")
)
