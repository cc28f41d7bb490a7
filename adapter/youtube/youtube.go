// Package youtube resolves single YouTube video URLs into candidates with
// proper metadata, and backs single-item feeds pointing at YouTube.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"uvp"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

type source struct {
	videoID string
}

func (s *source) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", s.videoID)
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Resolve(ctx context.Context) (uvp.Candidate, error) {
	client := youtube.Client{}
	video, err := client.GetVideoContext(ctx, s.URL())
	if err != nil {
		return uvp.Candidate{}, fmt.Errorf("failed to get video info: %w", err)
	}
	return uvp.Candidate{
		SourceID:     s.videoID,
		Title:        video.Title,
		Ref:          s.URL(),
		DurationSecs: video.Duration.Seconds(),
	}, nil
}

func Match(s string) (uvp.Source, error) {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	videoID, err := extractVideoID(parsedURL)
	if err != nil {
		return nil, err
	}
	return &source{videoID: videoID}, nil
}

func extractVideoID(u *url.URL) (string, error) {
	var candidate string
	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			candidate = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			candidate = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			candidate = strings.TrimPrefix(u.Path, "/embed/")
		}
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	default:
		return "", fmt.Errorf("not a YouTube URL: %v", u)
	}
	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("no video ID in URL: %v", u)
	}
	return candidate, nil
}

func New() uvp.Resolver {
	return uvp.Resolver{Name: "youtube", Match: Match}
}

func init() {
	uvp.DefaultResolverRegistry.MustAdd(New())
}
