package uri

import (
	"strings"

	"github.com/cuemby/dispatchd/pkg/types"
)

// entry pairs a parsed pattern with the subscription it was registered for.
type entry struct {
	pattern Pattern
	sub     *types.Subscription
}

// Index is a wildcard-matched index of subscriptions keyed by URI pattern.
// It is built fresh on every combined-set rebuild and then never mutated;
// callers swap the whole index rather than adding to a live one, which is
// what lets Match run lock-free once a snapshot is in hand.
//
// Entries are bucketed by the pattern's first literal path segment, when it
// has one, so Match only scans patterns that could possibly match a given
// URI's first segment instead of the full table. A pattern whose first path
// segment is itself a wildcard (or has no path segment at all) goes in
// catchAll and is checked against every URI.
type Index struct {
	buckets  map[string][]entry
	catchAll []entry
}

// NewIndex returns an empty index. Use Add to populate it, then treat it as
// immutable and safe for concurrent reads.
func NewIndex() *Index {
	return &Index{buckets: make(map[string][]entry)}
}

// Add inserts a subscription under pattern. Add is not safe to call
// concurrently with Match; indices are built single-threaded during a
// rebuild and only published once complete.
func (idx *Index) Add(pattern string, sub *types.Subscription) {
	p := ParsePattern(pattern)
	e := entry{pattern: p, sub: sub}
	if key, ok := firstLiteralSegment(p); ok {
		idx.buckets[key] = append(idx.buckets[key], e)
		return
	}
	idx.catchAll = append(idx.catchAll, e)
}

// firstLiteralSegment returns p's first path segment and true, unless the
// pattern has no path segment or starts with a wildcard, in which case it
// must live in the catch-all bucket.
func firstLiteralSegment(p Pattern) (string, bool) {
	if len(p.path) == 0 {
		return "", false
	}
	if p.path[0] == singleWildcard {
		return "", false
	}
	return p.path[0], true
}

// firstSegment returns the first path segment of a URI, for bucket lookup.
func firstSegment(rawURI string) (string, bool) {
	_, rest := splitScheme(rawURI)
	_, path := splitAuthority(rest)
	segs := strings.Split(path, "/")
	if len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return "", false
	}
	return segs[0], true
}

// Match returns every subscription whose pattern matches the given URI.
// Results are deduplicated by subscription identity (pointer), since a
// subscription may be registered under more than one channel pattern.
func (idx *Index) Match(uri string) map[*types.Subscription]struct{} {
	out := make(map[*types.Subscription]struct{})
	if seg, ok := firstSegment(uri); ok {
		for _, e := range idx.buckets[seg] {
			if e.pattern.Match(uri) {
				out[e.sub] = struct{}{}
			}
		}
	}
	for _, e := range idx.catchAll {
		if e.pattern.Match(uri) {
			out[e.sub] = struct{}{}
		}
	}
	return out
}

// MatchFiltered returns the subset of Match(uri) that also appears in
// filter. Used to intersect channel-index results with resource-index
// results.
func (idx *Index) MatchFiltered(uri string, filter map[*types.Subscription]struct{}) map[*types.Subscription]struct{} {
	out := make(map[*types.Subscription]struct{})
	matchInto := func(e entry) {
		if _, ok := filter[e.sub]; !ok {
			return
		}
		if e.pattern.Match(uri) {
			out[e.sub] = struct{}{}
		}
	}
	if seg, ok := firstSegment(uri); ok {
		for _, e := range idx.buckets[seg] {
			matchInto(e)
		}
	}
	for _, e := range idx.catchAll {
		matchInto(e)
	}
	return out
}

// RecipientIndex maps a recipient identifier directly to the subscriptions
// that named it, bypassing pattern matching entirely (spec §4.4 step 1:
// "if event.recipients is non-empty, look up subscriptions by recipient").
type RecipientIndex struct {
	byRecipient map[string][]*types.Subscription
}

// NewRecipientIndex returns an empty recipient index.
func NewRecipientIndex() *RecipientIndex {
	return &RecipientIndex{byRecipient: make(map[string][]*types.Subscription)}
}

// Add registers sub under each of its recipients.
func (r *RecipientIndex) Add(sub *types.Subscription) {
	for _, recipient := range sub.Recipients {
		r.byRecipient[recipient] = append(r.byRecipient[recipient], sub)
	}
}

// Match returns every subscription registered for any of the given
// recipients, deduplicated.
func (r *RecipientIndex) Match(recipients []string) map[*types.Subscription]struct{} {
	out := make(map[*types.Subscription]struct{})
	for _, recipient := range recipients {
		for _, sub := range r.byRecipient[recipient] {
			out[sub] = struct{}{}
		}
	}
	return out
}
