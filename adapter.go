package uvp

import (
	"context"
	"time"
)

// A Candidate is a video record produced by an Adapter during a sync, prior
// to merge/deduplication against the store.
type Candidate struct {
	// SourceID is the source-native identifier, used for deduplication
	// against re-fetches of the same feed.
	SourceID string
	Title    string
	// Ref is the playable reference handed to the playback coordinator.
	Ref          string
	Published    time.Time
	DurationSecs float64
}

// An Adapter fetches the candidate sequence for one feed. Adapters are
// stateless between calls and must terminate; a nil candidate slice with a
// nil error means the upstream reported no change since the hint.
type Adapter interface {
	Fetch(ctx context.Context, feed FeedSource, since SinceHint) ([]Candidate, error)
}

// An AdapterRegistry maps feed kinds to the Adapter that can fetch them. One
// adapter may serve several kinds.
type AdapterRegistry struct {
	adapters map[FeedKind]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[FeedKind]Adapter)}
}

func (r *AdapterRegistry) Register(kind FeedKind, a Adapter) error {
	if _, ok := r.adapters[kind]; ok {
		return ErrDuplicateAdapter
	}
	r.adapters[kind] = a
	return nil
}

// MustRegister wraps Register but panics if there is an error.
func (r *AdapterRegistry) MustRegister(kind FeedKind, a Adapter) {
	if err := r.Register(kind, a); err != nil {
		panic(err)
	}
}

// Lookup returns the Adapter for a feed kind, or ErrUnknownAdapter.
func (r *AdapterRegistry) Lookup(kind FeedKind) (Adapter, error) {
	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}
	return nil, ErrUnknownAdapter
}

// Kinds returns the feed kinds with a registered adapter.
func (r *AdapterRegistry) Kinds() []FeedKind {
	kinds := make([]FeedKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
