package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"uvp"
)

// UpsertFeed validates the descriptor and inserts the feed, or returns the
// already-registered feed for the same descriptor.
func (d *Database) UpsertFeed(kind uvp.FeedKind, descriptor, label string) (Feed, error) {
	if err := uvp.ValidateDescriptor(kind, descriptor); err != nil {
		return Feed{}, err
	}
	if label == "" {
		label = descriptor
	}
	var feed Feed
	err := d.inTx(func(tx *sqlx.Tx) error {
		if err := tx.Get(&feed, `SELECT * FROM feed WHERE descriptor = ? LIMIT 1`, descriptor); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		feed = Feed{
			ID:         uuid.NewString(),
			Kind:       kind,
			Descriptor: descriptor,
			Label:      label,
		}
		_, err := tx.NamedExec(
			`INSERT INTO feed (id, kind, descriptor, label) VALUES (:id, :kind, :descriptor, :label)`, &feed)
		return err
	})
	return feed, err
}

// GetFeed returns (nil, nil) if the error is only that no such row exists.
func (d *Database) GetFeed(id string) (*Feed, error) {
	f := Feed{}
	if err := d.db.Get(&f, `SELECT * FROM feed WHERE id = ? LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// FindFeed looks a feed up by id, then by label. Returns uvp.ErrNotFound if
// neither matches.
func (d *Database) FindFeed(idOrLabel string) (*Feed, error) {
	if f, err := d.GetFeed(idOrLabel); err != nil || f != nil {
		return f, err
	}
	f := Feed{}
	if err := d.db.Get(&f, `SELECT * FROM feed WHERE label = ? LIMIT 1`, idOrLabel); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: feed %q", uvp.ErrNotFound, idOrLabel)
		}
		return nil, err
	}
	return &f, nil
}

func (d *Database) ListFeeds() ([]Feed, error) {
	var feeds []Feed
	if err := d.db.Select(&feeds, `SELECT * FROM feed ORDER BY label`); err != nil {
		return nil, err
	}
	return feeds, nil
}

// RenameFeed changes the user-assigned label.
func (d *Database) RenameFeed(id, label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", uvp.ErrValidation)
	}
	res, err := d.db.Exec(`UPDATE feed SET label = ? WHERE id = ?`, label, id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: feed %q", uvp.ErrNotFound, id)
	}
	return nil
}

// TouchFeed records a successful sync.
func (d *Database) TouchFeed(id string, syncedAt time.Time) error {
	res, err := d.db.Exec(`UPDATE feed SET last_sync = ? WHERE id = ?`, syncedAt.UTC(), id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return fmt.Errorf("%w: feed %q", uvp.ErrNotFound, id)
	}
	return nil
}

// RemoveFeed deletes the feed row. Without cascade it is blocked by live
// dependent videos (uvp.ErrConflict); with cascade those videos transition to
// Removed first. Either way the denormalized feed_label is stamped onto all
// dependent rows so they remain listable after the feed row is gone.
func (d *Database) RemoveFeed(id string, cascade bool, now time.Time) error {
	return d.inTx(func(tx *sqlx.Tx) error {
		feed := Feed{}
		if err := tx.Get(&feed, `SELECT * FROM feed WHERE id = ? LIMIT 1`, id); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: feed %q", uvp.ErrNotFound, id)
			}
			return err
		}
		var live int
		if err := tx.Get(&live, `SELECT COUNT(*) FROM video WHERE feed_id = ? AND state != ?`, id, StateRemoved); err != nil {
			return err
		}
		if live > 0 && !cascade {
			return fmt.Errorf("%w: feed %q has %d non-removed videos", uvp.ErrConflict, feed.Label, live)
		}
		if _, err := tx.Exec(`UPDATE video SET feed_label = ? WHERE feed_id = ?`, feed.Label, id); err != nil {
			return err
		}
		if cascade {
			if _, err := tx.Exec(
				`UPDATE video SET state = ?, removed_at = ? WHERE feed_id = ? AND state != ?`,
				StateRemoved, now.UTC(), id, StateRemoved); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`DELETE FROM feed WHERE id = ?`, id)
		return err
	})
}
