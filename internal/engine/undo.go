package engine

import (
	"uvp/database"
	"uvp/internal/sync_"
)

// A removal captures enough of a just-removed video to reverse the removal.
type removal struct {
	videoID    string
	priorState database.VideoState
}

type ringBuf struct {
	entries []removal
}

// removalRing is the bounded, process-local record of recent removals. The
// oldest entry is evicted silently once capacity is reached; undo is
// best-effort, not a trash can.
type removalRing struct {
	capacity int
	buf      *sync_.Mutexed[*ringBuf]
}

func newRemovalRing(capacity int) *removalRing {
	return &removalRing{
		capacity: capacity,
		buf:      sync_.NewMutexed(&ringBuf{}),
	}
}

func (r *removalRing) push(rec removal) {
	_ = r.buf.Locked(func(b *ringBuf) error {
		b.entries = append(b.entries, rec)
		if len(b.entries) > r.capacity {
			b.entries = b.entries[len(b.entries)-r.capacity:]
		}
		return nil
	})
}

// pop returns the most recent removal, or false if none is retained.
func (r *removalRing) pop() (rec removal, ok bool) {
	_ = r.buf.Locked(func(b *ringBuf) error {
		if len(b.entries) == 0 {
			return nil
		}
		rec = b.entries[len(b.entries)-1]
		b.entries = b.entries[:len(b.entries)-1]
		ok = true
		return nil
	})
	return rec, ok
}

func (r *removalRing) len() (n int) {
	_ = r.buf.Locked(func(b *ringBuf) error {
		n = len(b.entries)
		return nil
	})
	return n
}
