// Package frontend is the thinnest HTTP surface that can exercise the
// dispatcher end to end: subscription CRUD, event publication, and the
// operational /healthz and /metrics endpoints. It is a demonstration
// harness, not the full REST service spec.md excludes from scope.
package frontend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cuemby/dispatchd/pkg/eventbus"
	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/metrics"
	"github.com/cuemby/dispatchd/pkg/types"
)

// Service is the slice of pkg/dispatcher.Dispatcher the front end needs.
type Service interface {
	Register(location string, doc []byte, accessKey string) (*types.SubscriptionSet, bool, error)
	Replace(location string, doc []byte, accessKey string) (*types.SubscriptionSet, error)
	Remove(location string) bool
	Get(location string) (*types.SubscriptionSet, bool)
	All() []*types.SubscriptionSet
	Publish(raw eventbus.RawEvent) error
}

// eventPayload is the JSON shape accepted by POST /events.
type eventPayload struct {
	ID          string   `json:"id"`
	Channel     string   `json:"channel"`
	Resource    string   `json:"resource"`
	Origins     []string `json:"origins"`
	Recipients  []string `json:"recipients"`
	ContentType string   `json:"content_type"`
	Payload     []byte   `json:"payload"`
}

// subscriptionSetView is the JSON shape GET /subscriptions(/{location}) renders.
type subscriptionSetView struct {
	OwnerURI      string `json:"owner_uri"`
	Location      string `json:"location"`
	Version       int64  `json:"version"`
	MaxFailures   int    `json:"max_failures"`
	HasExpiration bool   `json:"has_expiration"`
	Subscriptions int    `json:"subscriptions"`
}

// Handler builds the dispatchd HTTP front end as a single mux, in the same
// net/http.ServeMux shape the teacher used for its metrics/health routes.
func Handler(svc Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/subscriptions/", instrument("subscriptions_item", subscriptionItemHandler(svc)))
	mux.HandleFunc("/subscriptions", instrument("subscriptions_list", subscriptionListHandler(svc)))
	mux.HandleFunc("/events", instrument("events", eventsHandler(svc)))
	mux.HandleFunc("/healthz", instrument("healthz", metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, route)
		metrics.HTTPRequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func subscriptionItemHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location := strings.TrimPrefix(r.URL.Path, "/subscriptions/")
		if location == "" {
			http.NotFound(w, r)
			return
		}

		switch r.Method {
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			accessKey := r.URL.Query().Get("access_key")

			var set *types.SubscriptionSet
			status := http.StatusCreated
			if _, alreadyRegistered := svc.Get(location); alreadyRegistered {
				status = http.StatusOK
				set, err = svc.Replace(location, body, accessKey)
			} else {
				set, _, err = svc.Register(location, body, accessKey)
			}
			if err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(status)
			writeJSON(w, toView(set))

		case http.MethodDelete:
			if !svc.Remove(location) {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		case http.MethodGet:
			set, ok := svc.Get(location)
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, toView(set))

		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func subscriptionListHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sets := svc.All()
		views := make([]subscriptionSetView, 0, len(sets))
		for _, set := range sets {
			views = append(views, toView(set))
		}
		writeJSON(w, views)
	}
}

func eventsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload eventPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err := svc.Publish(eventbus.RawEvent{
			ID:          payload.ID,
			ChannelURI:  payload.Channel,
			ResourceURI: payload.Resource,
			Origins:     payload.Origins,
			Recipients:  payload.Recipients,
			ContentType: payload.ContentType,
			Payload:     payload.Payload,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch err {
	case types.ErrMalformedEvent, types.ErrMalformedSubscription:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case types.ErrLoopDetected, types.ErrEnqueueFailed:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case types.ErrOwnerMismatch, types.ErrExpirationTypeChanged:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error(err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func toView(set *types.SubscriptionSet) subscriptionSetView {
	return subscriptionSetView{
		OwnerURI:      set.OwnerURI,
		Location:      set.Location,
		Version:       set.Version,
		MaxFailures:   set.MaxFailures,
		HasExpiration: set.HasExpiration,
		Subscriptions: len(set.Subscriptions),
	}
}
