package delivery

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverSuccessOn2xx(t *testing.T) {
	var gotID, gotChannel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Dream-Event-Id")
		gotChannel = r.Header.Get("X-Dream-Event-Channel")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := NewClient(jar, time.Second)

	item := types.DispatchItem{
		DestinationURI: srv.URL,
		Event: &types.DispatcherEvent{
			ID:          "evt-1",
			ChannelURI:  "event://host/foo",
			ContentType: "application/json",
			Payload:     []byte(`{}`),
		},
	}

	assert.True(t, c.Deliver(context.Background(), item))
	assert.Equal(t, "evt-1", gotID)
	assert.Equal(t, "event://host/foo", gotChannel)
}

func TestDeliverSuccessOn304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	c := NewClient(jar, time.Second)
	item := types.DispatchItem{DestinationURI: srv.URL, Event: &types.DispatcherEvent{ID: "e", ChannelURI: "c"}}
	assert.True(t, c.Deliver(context.Background(), item))
}

func TestDeliverFailsOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	c := NewClient(jar, time.Second)
	item := types.DispatchItem{DestinationURI: srv.URL, Event: &types.DispatcherEvent{ID: "e", ChannelURI: "c"}}
	assert.False(t, c.Deliver(context.Background(), item))
}

func TestDeliverFailsOnTransportError(t *testing.T) {
	jar, _ := cookiejar.New(nil)
	c := NewClient(jar, 50*time.Millisecond)
	item := types.DispatchItem{DestinationURI: "http://127.0.0.1:1/unreachable", Event: &types.DispatcherEvent{ID: "e", ChannelURI: "c"}}
	assert.False(t, c.Deliver(context.Background(), item))
}
