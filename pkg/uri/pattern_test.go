package uri

import (
	"testing"

	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		uri     string
		matches bool
	}{
		{
			name:    "exact match",
			pattern: "event://pub/foo",
			uri:     "event://pub/foo",
			matches: true,
		},
		{
			name:    "wildcard host segment",
			pattern: "event://*/foo",
			uri:     "event://x/foo",
			matches: true,
		},
		{
			name:    "wildcard path segment",
			pattern: "event://pub/*",
			uri:     "event://pub/foo",
			matches: true,
		},
		{
			name:    "mismatched literal path segment",
			pattern: "event://pub/foo",
			uri:     "event://pub/bar",
			matches: false,
		},
		{
			name:    "suffix wildcard matches extra segments",
			pattern: "event://pub/foo/**",
			uri:     "event://pub/foo/bar/baz",
			matches: true,
		},
		{
			name:    "suffix wildcard matches zero extra segments",
			pattern: "event://pub/foo/**",
			uri:     "event://pub/foo",
			matches: true,
		},
		{
			name:    "trailing slash acts as suffix wildcard",
			pattern: "event://pub/foo/",
			uri:     "event://pub/foo/bar",
			matches: true,
		},
		{
			name:    "no suffix wildcard rejects extra segments",
			pattern: "event://pub/foo",
			uri:     "event://pub/foo/bar",
			matches: false,
		},
		{
			name:    "scheme and host are case-insensitive",
			pattern: "EVENT://PUB/foo",
			uri:     "event://pub/foo",
			matches: true,
		},
		{
			name:    "path is case-sensitive",
			pattern: "event://pub/Foo",
			uri:     "event://pub/foo",
			matches: false,
		},
		{
			name:    "universal resource pattern only matches scheme x",
			pattern: types.UniversalResourcePattern,
			uri:     "resource://anything/at/all",
			matches: false,
		},
		{
			name:    "universal resource pattern matches x scheme",
			pattern: types.UniversalResourcePattern,
			uri:     "x://anything/foo",
			matches: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePattern(tt.pattern)
			assert.Equal(t, tt.matches, p.Match(tt.uri))
		})
	}
}

func TestIndexMatchDeduplicates(t *testing.T) {
	idx := NewIndex()
	sub := &types.Subscription{ID: "sub-1"}
	idx.Add("event://*/foo", sub)
	idx.Add("event://pub/*", sub)

	matches := idx.Match("event://pub/foo")
	assert.Len(t, matches, 1)
	assert.Contains(t, matches, sub)
}

func TestIndexMatchFilteredIntersects(t *testing.T) {
	idx := NewIndex()
	a := &types.Subscription{ID: "a"}
	b := &types.Subscription{ID: "b"}
	idx.Add("x://*/*", a)
	idx.Add("x://*/*", b)

	filter := map[*types.Subscription]struct{}{a: {}}
	matches := idx.MatchFiltered("x://host/path", filter)

	assert.Len(t, matches, 1)
	assert.Contains(t, matches, a)
	assert.NotContains(t, matches, b)
}

func TestRecipientIndex(t *testing.T) {
	idx := NewRecipientIndex()
	alice := &types.Subscription{ID: "s1", Recipients: []string{"user:alice"}}
	bob := &types.Subscription{ID: "s2", Recipients: []string{"user:bob"}}
	idx.Add(alice)
	idx.Add(bob)

	matches := idx.Match([]string{"user:alice"})
	assert.Len(t, matches, 1)
	assert.Contains(t, matches, alice)
}
