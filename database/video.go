package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/r3labs/diff/v3"

	"uvp"
)

// videoMeta is the slice of a video that a re-fetch may legitimately change.
type videoMeta struct {
	Title        string
	DurationSecs float64
}

// MergeVideos applies one feed's candidate sequence as a single transaction:
// either the whole batch is committed, or none of it is. Candidates are
// processed in the order produced.
//
// Dedup per candidate, keyed by (feed, source-native id): unknown inserts as
// Available; a Removed row stays Removed unless reactivate is set; a live row
// only has changed upstream metadata re-applied.
func (d *Database) MergeVideos(feedID string, candidates []uvp.Candidate, now time.Time, reactivate bool) (MergeSummary, error) {
	summary := MergeSummary{}
	err := d.inTx(func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.Get(&exists, `SELECT COUNT(*) FROM feed WHERE id = ?`, feedID); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: feed %q", uvp.ErrNotFound, feedID)
		}
		for _, c := range candidates {
			if c.SourceID == "" || c.Ref == "" {
				return fmt.Errorf("%w: candidate missing source id or playable reference", uvp.ErrValidation)
			}
			if err := mergeOne(tx, feedID, c, now, reactivate, &summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MergeSummary{}, err
	}
	return summary, nil
}

func mergeOne(tx *sqlx.Tx, feedID string, c uvp.Candidate, now time.Time, reactivate bool, summary *MergeSummary) error {
	var v Video
	// Prefer a live row over removed history for the same source id.
	err := tx.Get(&v, `
		SELECT * FROM video WHERE feed_id = ? AND source_id = ?
		ORDER BY CASE state WHEN 'removed' THEN 1 ELSE 0 END, discovered_at DESC LIMIT 1`,
		feedID, c.SourceID)
	switch err {
	case sql.ErrNoRows:
		discovered := now
		if !c.Published.IsZero() {
			discovered = c.Published
		}
		v = Video{
			ID:           uuid.NewString(),
			FeedID:       &feedID,
			SourceID:     &c.SourceID,
			Title:        c.Title,
			Ref:          c.Ref,
			State:        StateAvailable,
			DiscoveredAt: discovered.UTC(),
		}
		if c.DurationSecs > 0 {
			v.DurationSecs = &c.DurationSecs
		}
		if _, err := tx.NamedExec(`
			INSERT INTO video (id, feed_id, source_id, title, ref, state, position_secs, duration_secs, discovered_at)
			VALUES (:id, :feed_id, :source_id, :title, :ref, :state, :position_secs, :duration_secs, :discovered_at)`,
			&v); err != nil {
			return err
		}
		summary.Added++
		return nil
	case nil:
	default:
		return err
	}

	if v.State == StateRemoved {
		if !reactivate {
			summary.Unchanged++
			return nil
		}
		if _, err := tx.Exec(`UPDATE video SET state = ?, removed_at = NULL WHERE id = ?`, StateAvailable, v.ID); err != nil {
			return err
		}
		summary.Reactivated++
		return nil
	}

	stored := videoMeta{Title: v.Title}
	if v.DurationSecs != nil {
		stored.DurationSecs = *v.DurationSecs
	}
	proposed := videoMeta{Title: c.Title, DurationSecs: c.DurationSecs}
	if proposed.DurationSecs == 0 {
		// An adapter that can't see durations must not erase a known one.
		proposed.DurationSecs = stored.DurationSecs
	}
	changes, err := diff.Diff(stored, proposed)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		summary.Unchanged++
		return nil
	}
	var duration *float64
	if proposed.DurationSecs > 0 {
		duration = &proposed.DurationSecs
	}
	if _, err := tx.Exec(`UPDATE video SET title = ?, duration_secs = ? WHERE id = ?`, proposed.Title, duration, v.ID); err != nil {
		return err
	}
	summary.Refreshed++
	return nil
}

// InsertVideo adds a directly added video with no owning feed. A live row
// with the same playable reference is a uvp.ErrConflict.
func (d *Database) InsertVideo(c uvp.Candidate, now time.Time) (Video, error) {
	if c.Ref == "" {
		return Video{}, fmt.Errorf("%w: empty playable reference", uvp.ErrValidation)
	}
	title := c.Title
	if title == "" {
		title = c.Ref
	}
	v := Video{
		ID:           uuid.NewString(),
		Title:        title,
		Ref:          c.Ref,
		State:        StateAvailable,
		DiscoveredAt: now.UTC(),
	}
	if c.DurationSecs > 0 {
		v.DurationSecs = &c.DurationSecs
	}
	err := d.inTx(func(tx *sqlx.Tx) error {
		var count int
		if err := tx.Get(&count,
			`SELECT COUNT(*) FROM video WHERE feed_id IS NULL AND ref = ? AND state != ?`, c.Ref, StateRemoved); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: video with reference %q already tracked", uvp.ErrConflict, c.Ref)
		}
		_, err := tx.NamedExec(`
			INSERT INTO video (id, title, ref, state, position_secs, duration_secs, discovered_at)
			VALUES (:id, :title, :ref, :state, :position_secs, :duration_secs, :discovered_at)`,
			&v)
		return err
	})
	if err != nil {
		return Video{}, err
	}
	return v, nil
}

// GetVideo returns (nil, nil) if the error is only that no such row exists.
func (d *Database) GetVideo(id string) (*Video, error) {
	v := Video{}
	if err := d.db.Get(&v, `SELECT * FROM video WHERE id = ? LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// FindVideo looks a video up by id, falling back to playable reference (live
// rows first). Returns uvp.ErrNotFound if neither matches.
func (d *Database) FindVideo(idOrRef string) (*Video, error) {
	if v, err := d.GetVideo(idOrRef); err != nil || v != nil {
		return v, err
	}
	v := Video{}
	err := d.db.Get(&v, `
		SELECT * FROM video WHERE ref = ?
		ORDER BY CASE state WHEN 'removed' THEN 1 ELSE 0 END, discovered_at DESC LIMIT 1`, idOrRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: video %q", uvp.ErrNotFound, idOrRef)
		}
		return nil, err
	}
	return &v, nil
}

// ListVideos returns videos matching the filter, newest discovery first.
func (d *Database) ListVideos(filter Filter) ([]Video, error) {
	query := `SELECT * FROM video`
	var clauses []string
	var args []interface{}
	if filter.FeedID != nil {
		clauses = append(clauses, `feed_id = ?`)
		args = append(args, *filter.FeedID)
	}
	if filter.State != nil {
		clauses = append(clauses, `state = ?`)
		args = append(args, *filter.State)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY discovered_at DESC, id`
	var videos []Video
	if err := d.db.Select(&videos, query, args...); err != nil {
		return nil, err
	}
	return videos, nil
}

// legalTransitions: Available and Active move between each other, both to Removed,
// and Removed back to Available (undo). Restoring a removed video straight to
// Active is reserved for RestoreVideo.
var legalTransitions = map[VideoState][]VideoState{
	StateAvailable: {StateActive, StateRemoved},
	StateActive:    {StateAvailable, StateRemoved},
	StateRemoved:   {StateAvailable},
}

func transitionAllowed(from, to VideoState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetState applies a lifecycle transition, enforcing the state machine. An
// illegal transition fails with uvp.ErrInvalidTransition and mutates nothing.
func (d *Database) SetState(id string, newState VideoState, now time.Time) error {
	return d.inTx(func(tx *sqlx.Tx) error {
		return setStateTx(tx, id, newState, now, false)
	})
}

// RestoreVideo is the undo path: it requires the video to be Removed and
// restores it to its recorded prior state, Active included.
func (d *Database) RestoreVideo(id string, priorState VideoState, now time.Time) error {
	if priorState != StateAvailable && priorState != StateActive {
		return fmt.Errorf("%w: cannot restore to %q", uvp.ErrInvalidTransition, priorState)
	}
	return d.inTx(func(tx *sqlx.Tx) error {
		return setStateTx(tx, id, priorState, now, true)
	})
}

func setStateTx(tx *sqlx.Tx, id string, newState VideoState, now time.Time, restoring bool) error {
	var v Video
	if err := tx.Get(&v, `SELECT * FROM video WHERE id = ? LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: video %q", uvp.ErrNotFound, id)
		}
		return err
	}
	if restoring {
		if v.State != StateRemoved {
			return fmt.Errorf("%w: %s -> %s (video is not removed)", uvp.ErrInvalidTransition, v.State, newState)
		}
	} else if !transitionAllowed(v.State, newState) {
		return fmt.Errorf("%w: %s -> %s", uvp.ErrInvalidTransition, v.State, newState)
	}
	// removed_at is set exactly while the row is Removed.
	var removedAt *time.Time
	if newState == StateRemoved {
		t := now.UTC()
		removedAt = &t
	}
	_, err := tx.Exec(`UPDATE video SET state = ?, removed_at = ? WHERE id = ?`, newState, removedAt, id)
	return err
}

// SetPlayback records the playback position (and duration, when observed)
// for resuming later.
func (d *Database) SetPlayback(id string, positionSecs float64, durationSecs *float64) error {
	res, err := d.db.Exec(`UPDATE video SET position_secs = ?, duration_secs = COALESCE(?, duration_secs) WHERE id = ?`,
		positionSecs, durationSecs, id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: video %q", uvp.ErrNotFound, id)
	}
	return nil
}

func (d *Database) SetLastPlayed(id string, playedAt time.Time) error {
	res, err := d.db.Exec(`UPDATE video SET last_played_at = ? WHERE id = ?`, playedAt.UTC(), id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: video %q", uvp.ErrNotFound, id)
	}
	return nil
}

// SetTitle replaces a placeholder title, e.g. with the media title the
// player reported.
func (d *Database) SetTitle(id, title string) error {
	if title == "" {
		return fmt.Errorf("%w: empty title", uvp.ErrValidation)
	}
	res, err := d.db.Exec(`UPDATE video SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: video %q", uvp.ErrNotFound, id)
	}
	return nil
}
