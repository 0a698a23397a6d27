// Package eventbus turns raw inbound messages into validated dispatcher
// events, and provides the small observer-list primitive used for the
// combined-set-updated notification.
//
// It is deliberately not a general pub/sub broker: the dispatcher only ever
// needs to normalise one event at a time and to fan a combined-set change
// out to a handful of in-process observers. Routing and fan-out to
// subscribers is pkg/dispatch's job.
package eventbus

import (
	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/google/uuid"
)

// RawEvent is the loosely-typed shape a publisher sends in; Normalize turns
// it into a validated, immutable types.DispatcherEvent.
type RawEvent struct {
	ID          string
	ChannelURI  string
	ResourceURI string
	Origins     []string
	Recipients  []string
	Via         []string
	ContentType string
	Payload     []byte
}

// Normalize validates a RawEvent and produces a DispatcherEvent. A channel
// is required, and so is at least one origin unless the event names a
// resource: an event with neither a resource nor any origins is malformed.
// A missing ID is assigned a fresh UUID.
func Normalize(raw RawEvent) (*types.DispatcherEvent, error) {
	if raw.ChannelURI == "" {
		return nil, types.ErrMalformedEvent
	}
	if raw.ResourceURI == "" && len(raw.Origins) == 0 {
		return nil, types.ErrMalformedEvent
	}

	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &types.DispatcherEvent{
		ID:          id,
		ChannelURI:  raw.ChannelURI,
		ResourceURI: raw.ResourceURI,
		Origins:     append([]string(nil), raw.Origins...),
		Recipients:  append([]string(nil), raw.Recipients...),
		Via:         append([]string(nil), raw.Via...),
		ContentType: raw.ContentType,
		Payload:     raw.Payload,
	}, nil
}
