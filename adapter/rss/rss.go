// Package rss fetches RSS and Atom feeds into candidate videos. It serves
// the channel, query, and generic feed kinds; they differ only in how the
// descriptor expands to a feed URL.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"uvp"
	"uvp/internal/fetchcache"
)

type Config struct {
	Client *http.Client
	// Cache, if set, enables conditional requests: a 304 from the origin
	// reports "no change" without re-parsing the feed.
	Cache     *fetchcache.Cache
	UserAgent string
}

var DefaultConfig = Config{
	Client:    http.DefaultClient,
	UserAgent: "uvp/1.0",
}

type Adapter struct {
	config Config
	log    *zap.SugaredLogger
}

func New(config Config) *Adapter {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig.UserAgent
	}
	return &Adapter{config: config, log: zap.S().Named("adapter.rss")}
}

// RegisterAll registers this adapter for every feed kind it can serve.
func (a *Adapter) RegisterAll(r *uvp.AdapterRegistry) {
	r.MustRegister(uvp.FeedKindChannel, a)
	r.MustRegister(uvp.FeedKindQuery, a)
	r.MustRegister(uvp.FeedKindGeneric, a)
}

func (a *Adapter) Fetch(ctx context.Context, feed uvp.FeedSource, since uvp.SinceHint) ([]uvp.Candidate, error) {
	url := feed.SourceURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorParse, Err: err}
	}
	req.Header.Set("User-Agent", a.config.UserAgent)
	if a.config.Cache != nil {
		if v, ok := a.config.Cache.Get(url); ok {
			if v.ETag != "" {
				req.Header.Set("If-None-Match", v.ETag)
			}
			if v.LastModified != "" {
				req.Header.Set("If-Modified-Since", v.LastModified)
			}
		}
	}

	resp, err := a.config.Client.Do(req)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		a.log.Debugw("feed unchanged upstream", "url", url)
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorAuth, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNotFound, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}
	case resp.StatusCode >= 400:
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorNetwork, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}
	}

	// gofeed detects RSS vs Atom itself, same dual-parse the feed sources need:
	// YouTube publishes Atom, mediathekviewweb publishes RSS.
	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, &uvp.AdapterError{Feed: feed.Label, Kind: uvp.AdapterErrorParse, Err: err}
	}

	if a.config.Cache != nil {
		v := fetchcache.Validator{
			ETag:         resp.Header.Get("Etag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := a.config.Cache.Put(url, v); err != nil {
			a.log.Warnw("failed to store cache validator", "url", url, "error", err)
		}
	}

	candidates := make([]uvp.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		c, ok := candidateFromItem(item)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// candidateFromItem maps one feed entry to a candidate. Entries without a
// link cannot be played and are skipped.
func candidateFromItem(item *gofeed.Item) (uvp.Candidate, bool) {
	if item == nil || item.Link == "" {
		return uvp.Candidate{}, false
	}
	c := uvp.Candidate{
		SourceID: item.GUID,
		Title:    item.Title,
		Ref:      item.Link,
	}
	if c.SourceID == "" {
		c.SourceID = item.Link
	}
	if c.Title == "" {
		c.Title = item.Link
	}
	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}
	c.Published = published
	if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
		if secs, err := strconv.ParseFloat(item.ITunesExt.Duration, 64); err == nil {
			c.DurationSecs = secs
		}
	}
	return c, true
}
