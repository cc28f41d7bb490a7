package uvp

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type FeedKind string

const (
	// FeedKindChannel is a YouTube channel, addressed by channel name or ID.
	FeedKindChannel FeedKind = "channel"
	// FeedKindQuery is an on-demand mediathekviewweb search query.
	FeedKindQuery FeedKind = "query"
	// FeedKindSingle is a feed tracking exactly one item, addressed by URL.
	FeedKindSingle FeedKind = "single"
	// FeedKindGeneric is any other RSS/Atom feed, addressed by URL.
	FeedKindGeneric FeedKind = "generic"
)

func (k FeedKind) String() string { return string(k) }

func ParseFeedKind(s string) (FeedKind, error) {
	switch k := FeedKind(strings.ToLower(s)); k {
	case FeedKindChannel, FeedKindQuery, FeedKindSingle, FeedKindGeneric:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown feed kind %q", ErrValidation, s)
	}
}

// A FeedSource is what an Adapter needs to know about a feed to fetch it.
type FeedSource struct {
	ID         string
	Kind       FeedKind
	Descriptor string
	Label      string
}

// SourceURL expands the descriptor into the concrete URL the adapter should
// fetch. Channel and query descriptors are templates over well-known feed
// endpoints; single and generic descriptors are already URLs.
func (f FeedSource) SourceURL() string {
	switch f.Kind {
	case FeedKindChannel:
		return fmt.Sprintf("https://www.youtube.com/feeds/videos.xml?channel_id=%s", url.QueryEscape(f.Descriptor))
	case FeedKindQuery:
		return fmt.Sprintf("https://mediathekviewweb.de/feed?query=%s", url.QueryEscape(f.Descriptor))
	default:
		return f.Descriptor
	}
}

// ValidateDescriptor checks a descriptor is well-formed for its feed kind.
// Failures wrap ErrValidation and never mutate anything.
func ValidateDescriptor(kind FeedKind, descriptor string) error {
	if strings.TrimSpace(descriptor) == "" {
		return fmt.Errorf("%w: empty descriptor", ErrValidation)
	}
	switch kind {
	case FeedKindChannel, FeedKindQuery:
		// Free-form identifiers; anything non-empty goes.
		return nil
	case FeedKindSingle, FeedKindGeneric:
		u, err := url.Parse(descriptor)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: unsupported URL scheme %q", ErrValidation, u.Scheme)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown feed kind %q", ErrValidation, kind)
	}
}

// A SinceHint tells an adapter when the feed was last synchronized, so it can
// skip work for an unchanged upstream. Adapters are free to ignore it.
type SinceHint struct {
	LastSync time.Time
}

func (h SinceHint) IsZero() bool { return h.LastSync.IsZero() }
