package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/dispatchd/pkg/config"
	"github.com/cuemby/dispatchd/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFor(owner, channel, destination string) []byte {
	return []byte(`<subscription-set>
  <uri.owner>` + owner + `</uri.owner>
  <subscription>
    <channel>` + channel + `</channel>
    <recipient><uri>` + destination + `</uri></recipient>
  </subscription>
</subscription-set>`)
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := config.Default()
	cfg.ServiceOwnerURI = "http://dispatcher/"
	cfg.QueueRootPath = t.TempDir()
	cfg.WorkerConcurrency = 2

	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDispatcherDeliversToRegisteredSubscriber(t *testing.T) {
	delivered := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get("X-Dream-Event-Channel")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t)

	_, _, err := d.Register("/subscriptions/a", docFor("owner://a/", "event://orders/created", srv.URL), "")
	require.NoError(t, err)

	err = d.Publish(eventbus.RawEvent{
		ChannelURI:  "event://orders/created",
		Origins:     []string{"svc://orders/"},
		ContentType: "application/json",
		Payload:     []byte(`{"id":1}`),
	})
	require.NoError(t, err)

	select {
	case ch := <-delivered:
		assert.Equal(t, "event://orders/created", ch)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDispatcherRemoveDeletesSet(t *testing.T) {
	d := newTestDispatcher(t)

	_, _, err := d.Register("/subscriptions/b", docFor("owner://b/", "event://x/y", "http://127.0.0.1:1/unreachable"), "")
	require.NoError(t, err)

	assert.True(t, d.Remove("/subscriptions/b"))
	_, ok := d.Get("/subscriptions/b")
	assert.False(t, ok)
}
