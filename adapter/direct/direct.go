// Package direct is the fallback resolver for playable URLs no other
// resolver claims: the URL itself becomes the playable reference, with a
// title derived from the path.
package direct

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"uvp"
	"uvp/generic"
)

type Config struct {
	Protocols generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet(
			"http",
			"https",
		),
	}
}

func (c *Config) Match(s string) (uvp.Source, error) {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if !c.Protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("URL has no host: %v", s)
	}
	return &source{url: s, title: titleFromURL(parsedURL)}, nil
}

func (c Config) Resolver() uvp.Resolver {
	return uvp.Resolver{
		Name:  "direct",
		Match: c.Match,
	}
}

type source struct {
	url   string
	title string
}

func (s *source) URL() string {
	return s.url
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Resolve(context.Context) (uvp.Candidate, error) {
	return uvp.Candidate{
		Title: s.title,
		Ref:   s.url,
	}, nil
}

// titleFromURL derives a human-usable title from the URL path: the last path
// element without its extension, or the host when the path gives nothing.
func titleFromURL(u *url.URL) string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return u.Hostname()
	}
	elements := strings.Split(trimmed, "/")
	filename := elements[len(elements)-1]
	title := strings.TrimSuffix(filename, path.Ext(filename))
	if strings.ReplaceAll(title, ".", "") == "" {
		return u.Hostname()
	}
	return title
}

func init() {
	uvp.DefaultResolverRegistry.MustAdd(
		NewConfig().Resolver().WithPriority(uvp.PriorityLowest),
	)
}
