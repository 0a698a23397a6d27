package eventbus

import (
	"testing"

	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAssignsID(t *testing.T) {
	evt, err := Normalize(RawEvent{
		ChannelURI: "event://pub/foo",
		Origins:    []string{"http://pub/"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
}

func TestNormalizePreservesSuppliedID(t *testing.T) {
	evt, err := Normalize(RawEvent{
		ID:         "evt-1",
		ChannelURI: "event://pub/foo",
		Origins:    []string{"http://pub/"},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", evt.ID)
}

func TestNormalizeRequiresChannel(t *testing.T) {
	_, err := Normalize(RawEvent{Origins: []string{"http://pub/"}})
	assert.ErrorIs(t, err, types.ErrMalformedEvent)
}

func TestNormalizeRequiresOriginOrResource(t *testing.T) {
	_, err := Normalize(RawEvent{ChannelURI: "event://pub/foo"})
	assert.ErrorIs(t, err, types.ErrMalformedEvent)
}

func TestNormalizeAllowsResourceWithoutOrigin(t *testing.T) {
	evt, err := Normalize(RawEvent{
		ChannelURI:  "event://pub/foo",
		ResourceURI: "res://pub/bar",
	})
	require.NoError(t, err)
	assert.Equal(t, "res://pub/bar", evt.ResourceURI)
}

func TestObserversFireAll(t *testing.T) {
	obs := NewObservers[int]()
	var got []int
	obs.Subscribe(func(v int) { got = append(got, v) })
	obs.Subscribe(func(v int) { got = append(got, v*10) })

	obs.Fire(3)

	assert.ElementsMatch(t, []int{3, 30}, got)
}

func TestObserversUnsubscribe(t *testing.T) {
	obs := NewObservers[int]()
	called := false
	token := obs.Subscribe(func(v int) { called = true })
	obs.Unsubscribe(token)

	obs.Fire(1)

	assert.False(t, called)
}
