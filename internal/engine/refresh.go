package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"uvp"
	"uvp/database"
	"uvp/generic"
)

// A FeedResult is one feed's outcome within a refresh: a merge summary or a
// feed-scoped error, never both.
type FeedResult struct {
	Feed  database.Feed
	Merge database.MergeSummary
	Err   error
}

type RefreshSummary struct {
	Results []FeedResult
}

// Err aggregates the per-feed errors, or nil if every feed synced.
func (s RefreshSummary) Err() error {
	var result error
	for _, r := range s.Results {
		if r.Err != nil {
			result = multierror.Append(result, r.Err)
		}
	}
	return result
}

// Totals sums the merge summaries of the feeds that synced.
func (s RefreshSummary) Totals() database.MergeSummary {
	var total database.MergeSummary
	for _, r := range s.Results {
		total.Added += r.Merge.Added
		total.Unchanged += r.Merge.Unchanged
		total.Reactivated += r.Merge.Reactivated
		total.Refreshed += r.Merge.Refreshed
	}
	return total
}

type RefreshOptions struct {
	// Feeds restricts the refresh to the named feeds (by id or label).
	// Empty means all registered feeds.
	Feeds []string
	// Progress, if set, is called once per completed feed, from the
	// refreshing goroutine.
	Progress func(FeedResult)
}

type fetched struct {
	feed       database.Feed
	candidates []uvp.Candidate
	err        error
}

// Refresh synchronizes the selected feeds: adapter fetches fan out with
// bounded concurrency, merges fan in through the store's single writer.
// Adapter failures are collected into the summary per feed and never abort
// sibling feeds; the returned error is reserved for infrastructure failures
// (store access, unknown feed names, cancellation).
func (e *Engine) Refresh(ctx context.Context, opts RefreshOptions) (RefreshSummary, error) {
	feeds, err := e.selectFeeds(opts.Feeds)
	if err != nil {
		return RefreshSummary{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fetched)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.RefreshConcurrency)
	go func() {
		defer close(results)
		for _, feed := range feeds {
			feed := feed
			g.Go(func() error {
				candidates, err := e.fetchFeed(gctx, feed)
				select {
				case results <- fetched{feed: feed, candidates: candidates, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	summary := RefreshSummary{}
	for f := range results {
		result := FeedResult{Feed: f.feed, Err: f.err}
		if f.err == nil {
			now := time.Now()
			merge, err := e.store.MergeVideos(f.feed.ID, f.candidates, now, e.config.ReactivateRemoved)
			if err != nil {
				// A store failure is not feed-scoped; stop the refresh.
				return summary, err
			}
			result.Merge = merge
			if err := e.store.TouchFeed(f.feed.ID, now); err != nil {
				return summary, err
			}
			e.log.Infow("feed synced",
				"label", f.feed.Label,
				"added", merge.Added,
				"unchanged", merge.Unchanged,
				"reactivated", merge.Reactivated,
				"refreshed", merge.Refreshed,
			)
		} else {
			e.log.Warnw("feed sync failed", "label", f.feed.Label, "error", f.err)
		}
		summary.Results = append(summary.Results, result)
		if opts.Progress != nil {
			opts.Progress(result)
		}
	}
	return summary, ctx.Err()
}

// selectFeeds resolves the requested feed names to stored feeds, or lists
// all feeds when no subset was requested.
func (e *Engine) selectFeeds(names []string) ([]database.Feed, error) {
	all, err := e.store.ListFeeds()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return all, nil
	}
	wanted := generic.NewSet[string]()
	for _, name := range names {
		feed, err := e.store.FindFeed(name)
		if err != nil {
			return nil, err
		}
		wanted.Add(feed.ID)
	}
	selected := make([]database.Feed, 0, wanted.Count())
	for _, feed := range all {
		if wanted.Contains(feed.ID) {
			selected = append(selected, feed)
		}
	}
	return selected, nil
}

// fetchFeed drives one feed's adapter to completion under the per-adapter
// timeout, normalizing failures into feed-scoped AdapterErrors.
func (e *Engine) fetchFeed(ctx context.Context, feed database.Feed) ([]uvp.Candidate, error) {
	adapter, err := e.config.Adapters.Lookup(feed.Kind)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNotFound, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.AdapterTimeout)
	defer cancel()
	since := uvp.SinceHint{}
	if feed.LastSync != nil {
		since.LastSync = *feed.LastSync
	}
	candidates, err := adapter.Fetch(ctx, feed.Source(), since)
	if err != nil {
		var ae *uvp.AdapterError
		if errors.As(err, &ae) {
			if ae.Feed == "" {
				ae.Feed = feed.Label
			}
			return nil, ae
		}
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNetwork, Err: err}
	}
	return candidates, nil
}
