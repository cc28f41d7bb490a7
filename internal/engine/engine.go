// Package engine orchestrates feed synchronization and video lifecycle
// transitions over the store. It is the only component that drives adapters,
// and every state change it makes goes through the store's transactional API.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"uvp"
	"uvp/database"
)

type Config struct {
	Store     *database.Database
	Adapters  *uvp.AdapterRegistry
	Resolvers *uvp.ResolverRegistry
	// AdapterTimeout bounds one feed's fetch; on timeout that feed's sync
	// fails and sibling feeds proceed.
	AdapterTimeout time.Duration
	// RefreshConcurrency bounds the fan-out of a multi-feed refresh.
	RefreshConcurrency int
	// ReactivateRemoved makes a re-discovered Removed video Available again.
	// Off by default: a user's deletion outlives upstream re-publication.
	ReactivateRemoved bool
	// UndoDepth is how many removals are held for undo before the oldest is
	// silently evicted.
	UndoDepth int
}

var DefaultConfig = Config{
	Resolvers:          &uvp.DefaultResolverRegistry,
	AdapterTimeout:     30 * time.Second,
	RefreshConcurrency: 4,
	UndoDepth:          16,
}

type Engine struct {
	config Config
	log    *zap.SugaredLogger
	store  *database.Database
	undo   *removalRing
}

func New(config Config) (*Engine, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: engine requires a store", uvp.ErrValidation)
	}
	if config.Adapters == nil {
		config.Adapters = uvp.NewAdapterRegistry()
	}
	if config.Resolvers == nil {
		config.Resolvers = &uvp.DefaultResolverRegistry
	}
	if config.AdapterTimeout <= 0 {
		config.AdapterTimeout = DefaultConfig.AdapterTimeout
	}
	if config.RefreshConcurrency <= 0 {
		config.RefreshConcurrency = DefaultConfig.RefreshConcurrency
	}
	if config.UndoDepth <= 0 {
		config.UndoDepth = DefaultConfig.UndoDepth
	}
	return &Engine{
		config: config,
		log:    zap.S().Named("engine"),
		store:  config.Store,
		undo:   newRemovalRing(config.UndoDepth),
	}, nil
}

// AddFeed registers a feed for synchronization.
func (e *Engine) AddFeed(kind uvp.FeedKind, descriptor, label string) (database.Feed, error) {
	feed, err := e.store.UpsertFeed(kind, descriptor, label)
	if err != nil {
		return database.Feed{}, err
	}
	e.log.Infow("feed registered", "label", feed.Label, "kind", feed.Kind)
	return feed, nil
}

// AddVideo tracks a single video with no owning feed. The resolver registry
// fills in metadata (title, canonical reference, duration) for URLs it
// recognizes; an explicit title wins over the resolved one.
func (e *Engine) AddVideo(ctx context.Context, url, title string) (database.Video, error) {
	source, err := e.config.Resolvers.Match(url)
	if err != nil {
		return database.Video{}, fmt.Errorf("%w: %q", uvp.ErrValidation, url)
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.AdapterTimeout)
	defer cancel()
	candidate, err := source.Resolve(ctx)
	if err != nil {
		// Metadata is a nicety; the reference alone is enough to track.
		e.log.Warnw("could not resolve video metadata", "url", url, "error", err)
		candidate = uvp.Candidate{Ref: source.URL()}
	}
	if title != "" {
		candidate.Title = title
	}
	return e.store.InsertVideo(candidate, time.Now())
}

func (e *Engine) ListFeeds() ([]database.Feed, error) {
	return e.store.ListFeeds()
}

func (e *Engine) ListVideos(filter database.Filter) ([]database.Video, error) {
	return e.store.ListVideos(filter)
}

func (e *Engine) FindVideo(idOrRef string) (*database.Video, error) {
	return e.store.FindVideo(idOrRef)
}

func (e *Engine) RenameFeed(idOrLabel, label string) error {
	feed, err := e.store.FindFeed(idOrLabel)
	if err != nil {
		return err
	}
	return e.store.RenameFeed(feed.ID, label)
}

// RemoveFeed deletes a feed; with cascade its live videos transition to
// Removed first, each recorded for undo like an individual removal.
func (e *Engine) RemoveFeed(idOrLabel string, cascade bool) error {
	feed, err := e.store.FindFeed(idOrLabel)
	if err != nil {
		return err
	}
	var cascaded []database.Video
	if cascade {
		videos, err := e.store.ListVideos(database.Filter{FeedID: &feed.ID})
		if err != nil {
			return err
		}
		for _, v := range videos {
			if v.State != database.StateRemoved {
				cascaded = append(cascaded, v)
			}
		}
	}
	if err := e.store.RemoveFeed(feed.ID, cascade, time.Now()); err != nil {
		return err
	}
	// Oldest first, so undo unwinds the cascade newest-first.
	for i := len(cascaded) - 1; i >= 0; i-- {
		e.undo.push(removal{videoID: cascaded[i].ID, priorState: cascaded[i].State})
	}
	return nil
}
