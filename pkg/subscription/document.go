package subscription

import (
	"encoding/xml"

	"github.com/cuemby/dispatchd/pkg/types"
	"github.com/google/uuid"
)

// The subscription-set document format is XML (spec §6); we reach for
// encoding/xml rather than a third-party XML library because the schema is
// small, fixed, and needs no streaming or namespace handling — exactly the
// case the standard library's struct-tag decoder was built for. See
// DESIGN.md for the fuller justification.

type xmlDocument struct {
	XMLName     xml.Name `xml:"subscription-set"`
	Version     *int64   `xml:"version,attr"`
	MaxFailures *int     `xml:"max-failures,attr"`

	// Expires selects the durable-vs-memory queue class (spec §3
	// "has_expiration"); absent means false, a non-expiring set delivered
	// through the shared in-memory queue class.
	Expires *bool `xml:"expires,attr"`

	OwnerURI      string            `xml:"uri.owner"`
	Subscriptions []xmlSubscription `xml:"subscription"`
}

type xmlSubscription struct {
	ID         string         `xml:"id,attr"`
	Channels   []string       `xml:"channel"`
	Resources  []string       `xml:"uri.resource"`
	ProxyURI   string         `xml:"uri.proxy"`
	Recipients []xmlRecipient `xml:"recipient"`
	SetCookie  string         `xml:"set-cookie"`
}

type xmlRecipient struct {
	URI string `xml:"uri"`
}

// ParseDocument decodes a subscription-set document into a SubscriptionSet.
// Location and AccessKey are not part of the document; the caller (the
// Store) fills them in after a successful parse.
func ParseDocument(data []byte) (*types.SubscriptionSet, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, types.ErrMalformedSubscription
	}
	if doc.OwnerURI == "" {
		return nil, types.ErrMalformedSubscription
	}

	set := &types.SubscriptionSet{
		OwnerURI:    doc.OwnerURI,
		MaxFailures: types.DefaultMaxFailures,
	}
	if doc.Version != nil {
		set.Version = *doc.Version
	}
	if doc.MaxFailures != nil {
		set.MaxFailures = *doc.MaxFailures
	}
	if doc.Expires != nil {
		set.HasExpiration = *doc.Expires
	}

	cookieSeen := make(map[string]struct{})
	for _, xs := range doc.Subscriptions {
		sub, err := parseSubscription(xs)
		if err != nil {
			return nil, err
		}
		set.Subscriptions = append(set.Subscriptions, sub)
		if sub.Cookie != "" {
			if _, ok := cookieSeen[sub.Cookie]; !ok {
				cookieSeen[sub.Cookie] = struct{}{}
				set.Cookies = append(set.Cookies, sub.Cookie)
			}
		}
	}

	return set, nil
}

func parseSubscription(xs xmlSubscription) (*types.Subscription, error) {
	if len(xs.Channels) == 0 {
		return nil, types.ErrMalformedSubscription
	}

	recipients := make([]string, 0, len(xs.Recipients))
	for _, r := range xs.Recipients {
		if r.URI == "" {
			return nil, types.ErrMalformedSubscription
		}
		recipients = append(recipients, r.URI)
	}

	destination := xs.ProxyURI
	switch {
	case destination != "":
		// explicit proxy endpoint, required when there's more than one recipient
	case len(recipients) == 1:
		destination = recipients[0]
	case len(recipients) > 1:
		return nil, types.ErrMalformedSubscription
	default:
		return nil, types.ErrMalformedSubscription
	}

	id := xs.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &types.Subscription{
		ID:             id,
		Channels:       append([]string(nil), xs.Channels...),
		Resources:      append([]string(nil), xs.Resources...),
		DestinationURI: destination,
		Recipients:     recipients,
		Cookie:         xs.SetCookie,
	}, nil
}

// SerializeDocument encodes set back into the subscription-set document
// format, used both to persist a durable queue's descriptor and to build
// the combined-set broadcast payload.
func SerializeDocument(set *types.SubscriptionSet) ([]byte, error) {
	doc := xmlDocument{
		OwnerURI:    set.OwnerURI,
		Version:     &set.Version,
		MaxFailures: &set.MaxFailures,
		Expires:     &set.HasExpiration,
	}
	for _, sub := range set.Subscriptions {
		xs := xmlSubscription{
			ID:        sub.ID,
			Channels:  sub.Channels,
			Resources: sub.Resources,
			SetCookie: sub.Cookie,
		}
		if len(sub.Recipients) != 1 || sub.DestinationURI != sub.Recipients[0] {
			xs.ProxyURI = sub.DestinationURI
		}
		for _, r := range sub.Recipients {
			xs.Recipients = append(xs.Recipients, xmlRecipient{URI: r})
		}
		doc.Subscriptions = append(doc.Subscriptions, xs)
	}
	return xml.MarshalIndent(doc, "", "  ")
}
