package database

import (
	"time"

	"uvp"
)

type Feed struct {
	ID         string       `db:"id"`
	Kind       uvp.FeedKind `db:"kind"`
	Descriptor string       `db:"descriptor"`
	Label      string       `db:"label"`
	LastSync   *time.Time   `db:"last_sync"`
}

// Source converts the stored row into the adapter-facing description.
func (f Feed) Source() uvp.FeedSource {
	return uvp.FeedSource{ID: f.ID, Kind: f.Kind, Descriptor: f.Descriptor, Label: f.Label}
}

type VideoState string

const (
	StateAvailable VideoState = "available"
	StateActive    VideoState = "active"
	StateRemoved   VideoState = "removed"
)

func (s VideoState) String() string { return string(s) }

func ParseVideoState(s string) (VideoState, error) {
	switch v := VideoState(s); v {
	case StateAvailable, StateActive, StateRemoved:
		return v, nil
	default:
		return "", uvp.ErrValidation
	}
}

type Video struct {
	ID string `db:"id"`
	// FeedID is nil for directly added videos. It dangles after its feed is
	// deleted; FeedLabel keeps the row listable regardless.
	FeedID       *string    `db:"feed_id"`
	FeedLabel    *string    `db:"feed_label"`
	SourceID     *string    `db:"source_id"`
	Title        string     `db:"title"`
	Ref          string     `db:"ref"`
	State        VideoState `db:"state"`
	PositionSecs float64    `db:"position_secs"`
	DurationSecs *float64   `db:"duration_secs"`
	DiscoveredAt time.Time  `db:"discovered_at"`
	LastPlayedAt *time.Time `db:"last_played_at"`
	RemovedAt    *time.Time `db:"removed_at"`
}

// MergeSummary reports the outcome of merging one feed's candidate sequence.
type MergeSummary struct {
	Added       int
	Unchanged   int
	Reactivated int
	// Refreshed counts live rows whose upstream metadata changed and was
	// re-applied. No state transition happens for these.
	Refreshed int
}

func (s MergeSummary) Total() int {
	return s.Added + s.Unchanged + s.Reactivated + s.Refreshed
}

// Filter restricts ListVideos. Nil fields match everything.
type Filter struct {
	FeedID *string
	State  *VideoState
}
