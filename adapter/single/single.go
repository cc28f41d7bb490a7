// Package single backs single-item feeds: a feed whose descriptor is one
// video URL. Syncing it re-resolves that URL, so title and duration follow
// the upstream.
package single

import (
	"context"

	"uvp"
)

type Adapter struct {
	resolvers *uvp.ResolverRegistry
}

func New(resolvers *uvp.ResolverRegistry) *Adapter {
	if resolvers == nil {
		resolvers = &uvp.DefaultResolverRegistry
	}
	return &Adapter{resolvers: resolvers}
}

func (a *Adapter) Fetch(ctx context.Context, feed uvp.FeedSource, _ uvp.SinceHint) ([]uvp.Candidate, error) {
	source, err := a.resolvers.Match(feed.Descriptor)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorParse, Err: err}
	}
	candidate, err := source.Resolve(ctx)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNetwork, Err: err}
	}
	if candidate.SourceID == "" {
		candidate.SourceID = source.URL()
	}
	return []uvp.Candidate{candidate}, nil
}
