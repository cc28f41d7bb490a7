package engine

import (
	"fmt"
	"time"

	"uvp"
	"uvp/database"
)

// Activate selects a video for playback or queueing.
func (e *Engine) Activate(idOrRef string) (database.Video, error) {
	return e.transition(idOrRef, database.StateActive)
}

// Deactivate puts an Active video back into the Available pool without
// removing it.
func (e *Engine) Deactivate(idOrRef string) (database.Video, error) {
	return e.transition(idOrRef, database.StateAvailable)
}

func (e *Engine) transition(idOrRef string, state database.VideoState) (database.Video, error) {
	v, err := e.store.FindVideo(idOrRef)
	if err != nil {
		return database.Video{}, err
	}
	if err := e.store.SetState(v.ID, state, time.Now()); err != nil {
		return database.Video{}, err
	}
	v.State = state
	return *v, nil
}

// Remove deletes a video and records the operation so it can be undone while
// the removal record retains it.
func (e *Engine) Remove(idOrRef string) (database.Video, error) {
	v, err := e.store.FindVideo(idOrRef)
	if err != nil {
		return database.Video{}, err
	}
	prior := v.State
	if err := e.store.SetState(v.ID, database.StateRemoved, time.Now()); err != nil {
		return database.Video{}, err
	}
	e.undo.push(removal{videoID: v.ID, priorState: prior})
	e.log.Infow("video removed", "id", v.ID, "title", v.Title, "prior", prior)
	v.State = database.StateRemoved
	return *v, nil
}

// UndoRemove reverses the most recent recorded removal, restoring the video
// to the state it had before: Available stays Available, Active stays Active.
// With nothing left to undo it fails with uvp.ErrNotFound.
func (e *Engine) UndoRemove() (database.Video, error) {
	rec, ok := e.undo.pop()
	if !ok {
		return database.Video{}, fmt.Errorf("%w: nothing to undo", uvp.ErrNotFound)
	}
	if err := e.store.RestoreVideo(rec.videoID, rec.priorState, time.Now()); err != nil {
		// The record is consumed either way; undo is best-effort.
		return database.Video{}, err
	}
	v, err := e.store.GetVideo(rec.videoID)
	if err != nil {
		return database.Video{}, err
	}
	if v == nil {
		return database.Video{}, fmt.Errorf("%w: video %q", uvp.ErrNotFound, rec.videoID)
	}
	e.log.Infow("removal undone", "id", v.ID, "title", v.Title, "state", v.State)
	return *v, nil
}

// UndoDepth reports how many removals are currently undoable.
func (e *Engine) UndoDepth() int {
	return e.undo.len()
}
