// Package delivery performs the outbound HTTP POST that carries a
// dispatched event to a subscriber, per spec §6: the event round-trips
// through a fixed set of X-Dream-Event-* headers, and a 2xx or 304
// response counts as success.
package delivery

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/metrics"
	"github.com/cuemby/dispatchd/pkg/types"
)

// Client performs deliveries for the Dispatch Core, grounded on the same
// request-then-classify-status shape as pkg/health's HTTPChecker, with a
// shared cookie jar substituted for the per-checker client so that
// subscriber-issued set-cookies are replayed on every subsequent POST.
type Client struct {
	HTTPClient *http.Client
}

// NewClient builds a Client whose requests carry cookies from jar.
func NewClient(jar http.CookieJar, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

// Deliver POSTs item to its destination and reports success: a 2xx or 304
// response is success; anything else, including a transport error, is
// failure. It never returns an error itself — DequeueHandler's contract is
// a plain bool.
func (c *Client) Deliver(ctx context.Context, item types.DispatchItem) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeliveryDuration)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.DestinationURI, bytes.NewReader(item.Event.Payload))
	if err != nil {
		log.WithEventID(item.Event.ID).Warn().Err(err).Msg("failed to build delivery request")
		metrics.DeliveryAttemptsTotal.WithLabelValues("build_error").Inc()
		return false
	}
	req.Header.Set("Content-Type", item.Event.ContentType)
	applyEventHeaders(req, item.Event)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.WithEventID(item.Event.ID).Warn().Err(err).Str("destination", item.DestinationURI).Msg("delivery transport error")
		metrics.DeliveryAttemptsTotal.WithLabelValues("transport_error").Inc()
		return false
	}
	defer resp.Body.Close()

	success := (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotModified
	if success {
		metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.DeliveryAttemptsTotal.WithLabelValues("rejected").Inc()
		log.WithEventID(item.Event.ID).Warn().
			Str("destination", item.DestinationURI).
			Int("status", resp.StatusCode).
			Msg("delivery rejected")
	}
	return success
}

func applyEventHeaders(req *http.Request, e *types.DispatcherEvent) {
	req.Header.Set("X-Dream-Event-Id", e.ID)
	req.Header.Set("X-Dream-Event-Channel", e.ChannelURI)
	if e.ResourceURI != "" {
		req.Header.Set("X-Dream-Event-Resource", e.ResourceURI)
	}
	for _, o := range e.Origins {
		req.Header.Add("X-Dream-Event-Origin", o)
	}
	for _, r := range e.Recipients {
		req.Header.Add("X-Dream-Event-Recipients", r)
	}
	for _, v := range e.Via {
		req.Header.Add("X-Dream-Event-Via", v)
	}
}
