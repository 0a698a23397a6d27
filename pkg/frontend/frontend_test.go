package frontend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/dispatchd/pkg/eventbus"
	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	sets      map[string]*types.SubscriptionSet
	published []eventbus.RawEvent
}

func newFakeService() *fakeService {
	return &fakeService{sets: make(map[string]*types.SubscriptionSet)}
}

func (f *fakeService) Register(location string, doc []byte, accessKey string) (*types.SubscriptionSet, bool, error) {
	set := &types.SubscriptionSet{OwnerURI: "owner://x/", Location: location, Version: 1}
	f.sets[location] = set
	return set, false, nil
}

func (f *fakeService) Replace(location string, doc []byte, accessKey string) (*types.SubscriptionSet, error) {
	set, ok := f.sets[location]
	if !ok {
		return nil, types.ErrNotFound
	}
	set.Version++
	return set, nil
}

func (f *fakeService) Remove(location string) bool {
	if _, ok := f.sets[location]; !ok {
		return false
	}
	delete(f.sets, location)
	return true
}

func (f *fakeService) Get(location string) (*types.SubscriptionSet, bool) {
	set, ok := f.sets[location]
	return set, ok
}

func (f *fakeService) All() []*types.SubscriptionSet {
	out := make([]*types.SubscriptionSet, 0, len(f.sets))
	for _, set := range f.sets {
		out = append(out, set)
	}
	return out
}

func (f *fakeService) Publish(raw eventbus.RawEvent) error {
	f.published = append(f.published, raw)
	return nil
}

func TestRegisterThenGet(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(Handler(svc))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/subscriptions/loc-1", bytes.NewReader([]byte("<subscription-set/>")))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/subscriptions/loc-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view subscriptionSetView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "loc-1", view.Location)
}

func TestRemoveMissingLocationReturns404(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(Handler(svc))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/subscriptions/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPublishEvent(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(Handler(svc))
	defer srv.Close()

	body, _ := json.Marshal(eventPayload{Channel: "event://x/y", Origins: []string{"svc://a/"}})
	resp, err := http.Post(srv.URL+"/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, svc.published, 1)
	assert.Equal(t, "event://x/y", svc.published[0].ChannelURI)
}
