package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvp"
	"uvp/database"
)

// stubAdapter serves canned candidate batches keyed by feed descriptor.
type stubAdapter struct {
	mu      sync.Mutex
	batches map[string][]uvp.Candidate
	errs    map[string]error
	calls   int
}

func (s *stubAdapter) Fetch(_ context.Context, feed uvp.FeedSource, _ uvp.SinceHint) ([]uvp.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[feed.Descriptor]; ok {
		return nil, err
	}
	return s.batches[feed.Descriptor], nil
}

func (s *stubAdapter) set(descriptor string, candidates ...uvp.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == nil {
		s.batches = make(map[string][]uvp.Candidate)
	}
	s.batches[descriptor] = candidates
}

func (s *stubAdapter) fail(descriptor string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[descriptor] = err
}

func newTestEngine(t *testing.T, adapter *stubAdapter, tweak func(*Config)) *Engine {
	t.Helper()
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(db.Close)

	registry := uvp.NewAdapterRegistry()
	registry.MustRegister(uvp.FeedKindChannel, adapter)
	registry.MustRegister(uvp.FeedKindQuery, adapter)

	config := DefaultConfig
	config.Store = db
	config.Adapters = registry
	config.Resolvers = &uvp.ResolverRegistry{}
	if tweak != nil {
		tweak(&config)
	}
	e, err := New(config)
	require.NoError(t, err)
	return e
}

func candidate(sourceID, title string) uvp.Candidate {
	return uvp.Candidate{
		SourceID: sourceID,
		Title:    title,
		Ref:      "https://example.com/watch?v=" + sourceID,
	}
}

// Full walk: two syncs with overlapping output, then play, remove, undo.
func TestRefreshAndLifecycle(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, nil)

	feed, err := e.AddFeed(uvp.FeedKindChannel, "UC123", "channel")
	assert.NoError(err)

	adapter.set("UC123", candidate("a1", "one"), candidate("a2", "two"))
	summary, err := e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)
	assert.NoError(summary.Err())
	assert.Equal(2, summary.Totals().Added)

	videos, err := e.ListVideos(database.Filter{FeedID: &feed.ID})
	assert.NoError(err)
	assert.Len(videos, 2)

	got, err := e.ListFeeds()
	assert.NoError(err)
	assert.NotNil(got[0].LastSync)

	adapter.set("UC123", candidate("a1", "one"), candidate("a3", "three"))
	summary, err = e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)
	assert.Equal(1, summary.Totals().Added)
	assert.Equal(1, summary.Totals().Unchanged)

	videos, err = e.ListVideos(database.Filter{FeedID: &feed.ID})
	assert.NoError(err)
	assert.Len(videos, 3)

	var a1 database.Video
	for _, v := range videos {
		if v.SourceID != nil && *v.SourceID == "a1" {
			a1 = v
		}
	}
	require.NotEmpty(t, a1.ID)

	v, err := e.Activate(a1.ID)
	assert.NoError(err)
	assert.Equal(database.StateActive, v.State)

	v, err = e.Remove(a1.ID)
	assert.NoError(err)
	assert.Equal(database.StateRemoved, v.State)

	// Undo restores the pre-removal state: Active, not Available.
	v, err = e.UndoRemove()
	assert.NoError(err)
	assert.Equal(a1.ID, v.ID)
	assert.Equal(database.StateActive, v.State)
}

func TestRefreshCollectsPerFeedErrors(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, nil)

	_, err := e.AddFeed(uvp.FeedKindChannel, "good", "good feed")
	assert.NoError(err)
	_, err = e.AddFeed(uvp.FeedKindQuery, "bad", "bad feed")
	assert.NoError(err)

	adapter.set("good", candidate("g1", "fine"))
	adapter.fail("bad", &uvp.AdapterError{Kind: uvp.AdapterErrorAuth, Err: errors.New("401")})

	summary, err := e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)
	assert.Len(summary.Results, 2)
	assert.Error(summary.Err())
	assert.Equal(1, summary.Totals().Added)

	for _, r := range summary.Results {
		if r.Feed.Label == "bad feed" {
			var ae *uvp.AdapterError
			if assert.ErrorAs(r.Err, &ae) {
				assert.Equal(uvp.AdapterErrorAuth, ae.Kind)
				assert.Equal("bad feed", ae.Feed)
			}
		} else {
			assert.NoError(r.Err)
		}
	}

	// The broken feed never got a successful sync recorded.
	feeds, err := e.ListFeeds()
	assert.NoError(err)
	for _, f := range feeds {
		if f.Label == "bad feed" {
			assert.Nil(f.LastSync)
		} else {
			assert.NotNil(f.LastSync)
		}
	}
}

func TestRefreshSubset(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, nil)

	_, err := e.AddFeed(uvp.FeedKindChannel, "one", "first")
	assert.NoError(err)
	_, err = e.AddFeed(uvp.FeedKindChannel, "two", "second")
	assert.NoError(err)
	adapter.set("one", candidate("o1", "x"))
	adapter.set("two", candidate("t1", "y"))

	summary, err := e.Refresh(context.Background(), RefreshOptions{Feeds: []string{"second"}})
	assert.NoError(err)
	assert.Len(summary.Results, 1)
	assert.Equal("second", summary.Results[0].Feed.Label)

	_, err = e.Refresh(context.Background(), RefreshOptions{Feeds: []string{"no such feed"}})
	assert.ErrorIs(err, uvp.ErrNotFound)
}

func TestRefreshUnknownAdapterKind(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, nil)

	_, err := e.AddFeed(uvp.FeedKindGeneric, "https://example.com/feed.xml", "no adapter")
	assert.NoError(err)

	summary, err := e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)
	require.Len(t, summary.Results, 1)
	var ae *uvp.AdapterError
	if assert.ErrorAs(summary.Results[0].Err, &ae) {
		assert.Equal(uvp.AdapterErrorNotFound, ae.Kind)
		assert.ErrorIs(ae, uvp.ErrUnknownAdapter)
	}
}

func TestRefreshProgress(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, func(c *Config) { c.RefreshConcurrency = 2 })

	for _, d := range []string{"f1", "f2", "f3"} {
		_, err := e.AddFeed(uvp.FeedKindChannel, d, d)
		assert.NoError(err)
		adapter.set(d, candidate(d+"-v", d))
	}

	var seen []string
	_, err := e.Refresh(context.Background(), RefreshOptions{Progress: func(r FeedResult) {
		seen = append(seen, r.Feed.Label)
	}})
	assert.NoError(err)
	assert.Len(seen, 3)
}

func TestUndoEviction(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, func(c *Config) { c.UndoDepth = 1 })

	_, err := e.AddFeed(uvp.FeedKindChannel, "UC123", "channel")
	assert.NoError(err)
	adapter.set("UC123", candidate("a1", "one"), candidate("a2", "two"))
	_, err = e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)

	videos, err := e.ListVideos(database.Filter{})
	assert.NoError(err)
	require.Len(t, videos, 2)

	_, err = e.Remove(videos[0].ID)
	assert.NoError(err)
	_, err = e.Remove(videos[1].ID)
	assert.NoError(err)
	assert.Equal(1, e.UndoDepth())

	// Only the most recent removal survived the ring.
	v, err := e.UndoRemove()
	assert.NoError(err)
	assert.Equal(videos[1].ID, v.ID)

	_, err = e.UndoRemove()
	assert.ErrorIs(err, uvp.ErrNotFound)
}

func TestRemoveFeedCascadeUndo(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}
	e := newTestEngine(t, adapter, nil)

	feed, err := e.AddFeed(uvp.FeedKindChannel, "UC123", "channel")
	assert.NoError(err)
	adapter.set("UC123", candidate("a1", "one"), candidate("a2", "two"))
	_, err = e.Refresh(context.Background(), RefreshOptions{})
	assert.NoError(err)

	assert.ErrorIs(e.RemoveFeed("channel", false), uvp.ErrConflict)
	assert.NoError(e.RemoveFeed("channel", true))

	videos, err := e.ListVideos(database.Filter{FeedID: &feed.ID})
	assert.NoError(err)
	for _, v := range videos {
		assert.Equal(database.StateRemoved, v.State)
	}

	// Cascaded removals are individually undoable.
	assert.Equal(2, e.UndoDepth())
	v, err := e.UndoRemove()
	assert.NoError(err)
	assert.Equal(database.StateAvailable, v.State)
}

type stubSource struct {
	url       string
	candidate uvp.Candidate
	err       error
}

func (s *stubSource) URL() string { return s.url }

func (s *stubSource) Resolve(context.Context) (uvp.Candidate, error) {
	if s.err != nil {
		return uvp.Candidate{}, s.err
	}
	return s.candidate, nil
}

func TestAddVideo(t *testing.T) {
	assert := assert_.New(t)
	adapter := &stubAdapter{}

	resolvers := &uvp.ResolverRegistry{}
	resolvers.MustAdd(uvp.Resolver{Name: "stub", Match: func(s string) (uvp.Source, error) {
		if s == "https://example.com/known" {
			return &stubSource{url: s, candidate: uvp.Candidate{Title: "resolved title", Ref: s}}, nil
		}
		if s == "https://example.com/flaky" {
			return &stubSource{url: s, err: errors.New("metadata fetch failed")}, nil
		}
		return nil, errors.New("no match")
	}})

	e := newTestEngine(t, adapter, func(c *Config) { c.Resolvers = resolvers })

	v, err := e.AddVideo(context.Background(), "https://example.com/known", "")
	assert.NoError(err)
	assert.Equal("resolved title", v.Title)
	assert.Nil(v.FeedID)

	// Resolution failure degrades to tracking the bare reference.
	v, err = e.AddVideo(context.Background(), "https://example.com/flaky", "")
	assert.NoError(err)
	assert.Equal("https://example.com/flaky", v.Title)

	// Explicit title wins.
	v, err = e.AddVideo(context.Background(), "https://example.com/known", "my title")
	assert.ErrorIs(err, uvp.ErrConflict)
	_, err = e.Remove("https://example.com/known")
	assert.NoError(err)
	v, err = e.AddVideo(context.Background(), "https://example.com/known", "my title")
	assert.NoError(err)
	assert.Equal("my title", v.Title)

	_, err = e.AddVideo(context.Background(), "ftp://example.com/nope", "")
	assert.ErrorIs(err, uvp.ErrValidation)
}
