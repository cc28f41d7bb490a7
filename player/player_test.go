package player

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvp"
	"uvp/database"
)

func newTestCoordinator(t *testing.T, config Config) (*Coordinator, *database.Database, database.Video) {
	t.Helper()
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(db.Close)
	v, err := db.InsertVideo(uvp.Candidate{Title: "episode one", Ref: "https://example.com/ep1.mp4"}, time.Now())
	require.NoError(t, err)
	config.IPCConnectTimeout = 200 * time.Millisecond
	config.TermGracePeriod = 500 * time.Millisecond
	return New(config, db), db, v
}

func TestPlayCleanExit(t *testing.T) {
	assert := assert_.New(t)
	c, db, v := newTestCoordinator(t, Config{Binary: "true"})

	outcome, err := c.Play(context.Background(), v.ID)
	assert.NoError(err)
	assert.Equal(database.StateActive, outcome.Video.State)
	assert.False(outcome.Finished)

	after, err := db.GetVideo(v.ID)
	assert.NoError(err)
	assert.Equal(database.StateActive, after.State)
	assert.NotNil(after.LastPlayedAt)
}

func TestPlayExitError(t *testing.T) {
	assert := assert_.New(t)
	c, db, v := newTestCoordinator(t, Config{Binary: "false"})

	_, err := c.Play(context.Background(), v.ID)
	var exitErr *uvp.PlayerExitError
	assert.ErrorAs(err, &exitErr)
	assert.Equal(1, exitErr.ExitCode)

	// Playback was attempted, so the video stays Active, but a failed run
	// is not a play.
	after, err := db.GetVideo(v.ID)
	assert.NoError(err)
	assert.Equal(database.StateActive, after.State)
	assert.Nil(after.LastPlayedAt)
}

func TestPlayLaunchError(t *testing.T) {
	assert := assert_.New(t)
	c, _, v := newTestCoordinator(t, Config{Binary: "/nonexistent/player/binary"})

	_, err := c.Play(context.Background(), v.ID)
	assert.ErrorIs(err, uvp.ErrPlayerLaunch)
}

func TestPlayUnknownVideo(t *testing.T) {
	assert := assert_.New(t)
	c, _, _ := newTestCoordinator(t, Config{Binary: "true"})

	_, err := c.Play(context.Background(), "no-such-video")
	assert.ErrorIs(err, uvp.ErrNotFound)
}

func TestPlayRemovedVideo(t *testing.T) {
	assert := assert_.New(t)
	c, db, v := newTestCoordinator(t, Config{Binary: "true"})
	require.NoError(t, db.SetState(v.ID, database.StateRemoved, time.Now()))

	_, err := c.Play(context.Background(), v.ID)
	assert.ErrorIs(err, uvp.ErrInvalidTransition)
}

func TestPlayCancellation(t *testing.T) {
	assert := assert_.New(t)
	script := filepath.Join(t.TempDir(), "fake-player")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755))
	c, db, v := newTestCoordinator(t, Config{Binary: script})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := c.Play(ctx, v.ID)
	assert.ErrorIs(err, context.Canceled)
	assert.Less(time.Since(start), 3*time.Second)

	// Interruption is not removal.
	after, err := db.GetVideo(v.ID)
	assert.NoError(err)
	assert.Equal(database.StateActive, after.State)
}

func TestObserve(t *testing.T) {
	assert := assert_.New(t)
	socketPath := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		enc := json.NewEncoder(conn)
		for _, event := range []ipcEvent{
			{Event: "property-change", Name: "media-title", Data: "The Real Title"},
			{Event: "property-change", Name: "duration", Data: 120.0},
			{Event: "file-loaded"},
			{Event: "property-change", Name: "duration", Data: nil},
			{Event: "property-change", Name: "playback-time", Data: 42.5},
		} {
			_ = enc.Encode(event)
		}
	}()

	report := observe(context.Background(), socketPath, 2*time.Second)
	assert.True(report.hasPosition)
	assert.Equal(42.5, report.position)
	assert.True(report.hasDuration)
	assert.Equal(120.0, report.duration)
	assert.Equal("The Real Title", report.title)
}

func TestObserveNoSocket(t *testing.T) {
	assert := assert_.New(t)
	report := observe(context.Background(), filepath.Join(t.TempDir(), "never.sock"), 200*time.Millisecond)
	assert.False(report.hasPosition)
	assert.False(report.hasDuration)
}

func TestRecordOutcomeFinished(t *testing.T) {
	assert := assert_.New(t)
	c, db, v := newTestCoordinator(t, Config{Binary: "true"})
	require.NoError(t, db.SetPlayback(v.ID, 30, nil))
	v.PositionSecs = 30

	outcome := c.recordOutcome(&v, playbackReport{
		position: 119.5, hasPosition: true,
		duration: 120, hasDuration: true,
	})
	assert.True(outcome.Finished)

	after, err := db.GetVideo(v.ID)
	assert.NoError(err)
	assert.Equal(0.0, after.PositionSecs)
	require.NotNil(t, after.DurationSecs)
	assert.Equal(120.0, *after.DurationSecs)
}

func TestRecordOutcomeMidway(t *testing.T) {
	assert := assert_.New(t)
	c, db, v := newTestCoordinator(t, Config{Binary: "true"})

	outcome := c.recordOutcome(&v, playbackReport{
		position: 42.5, hasPosition: true,
		duration: 120, hasDuration: true,
		title:    "ignored for explicit titles",
	})
	assert.False(outcome.Finished)

	after, err := db.GetVideo(v.ID)
	assert.NoError(err)
	assert.Equal(42.5, after.PositionSecs)
	// The title came from the feed, not the reference; the player does not
	// override it.
	assert.Equal("episode one", after.Title)
}
