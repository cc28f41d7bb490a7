// Package player launches and supervises the external media player for one
// video at a time, recording playback outcomes (last played, resume
// position) in the store.
package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"uvp"
	"uvp/database"
)

type Config struct {
	// Binary is the player executable. It is invoked with the playable
	// reference as the first argument.
	Binary string
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string
	// EndToleranceSecs: ending playback within this of the end counts as
	// having finished the video, resetting the resume position.
	EndToleranceSecs float64
	// IPCConnectTimeout bounds waiting for the player's IPC socket. Players
	// without mpv's IPC protocol still work; they just don't report position.
	IPCConnectTimeout time.Duration
	// TermGracePeriod is how long a cancelled player gets to exit on
	// SIGINT before it is killed.
	TermGracePeriod time.Duration
}

var DefaultConfig = Config{
	Binary:            "mpv",
	ExtraArgs:         []string{"--force-window=immediate"},
	EndToleranceSecs:  1.0,
	IPCConnectTimeout: 5 * time.Second,
	TermGracePeriod:   2 * time.Second,
}

// An Outcome reports what one playback did.
type Outcome struct {
	Video database.Video
	// Finished is true when playback stopped within EndToleranceSecs of the
	// end; the resume position is reset.
	Finished     bool
	PositionSecs float64
	DurationSecs float64
}

type Coordinator struct {
	config Config
	store  *database.Database
	log    *zap.SugaredLogger
}

func New(config Config, store *database.Database) *Coordinator {
	if config.Binary == "" {
		config.Binary = DefaultConfig.Binary
	}
	if config.EndToleranceSecs <= 0 {
		config.EndToleranceSecs = DefaultConfig.EndToleranceSecs
	}
	if config.IPCConnectTimeout <= 0 {
		config.IPCConnectTimeout = DefaultConfig.IPCConnectTimeout
	}
	if config.TermGracePeriod <= 0 {
		config.TermGracePeriod = DefaultConfig.TermGracePeriod
	}
	return &Coordinator{
		config: config,
		store:  store,
		log:    zap.S().Named("player"),
	}
}

// Play activates the video if needed, runs the player on its playable
// reference, and blocks until the player exits or ctx is cancelled. On
// cancellation the player is asked to terminate and the video stays Active.
func (c *Coordinator) Play(ctx context.Context, idOrRef string) (Outcome, error) {
	v, err := c.store.FindVideo(idOrRef)
	if err != nil {
		return Outcome{}, err
	}
	if v.State == database.StateRemoved {
		return Outcome{}, fmt.Errorf("%w: cannot play a removed video", uvp.ErrInvalidTransition)
	}
	if v.State == database.StateAvailable {
		if err := c.store.SetState(v.ID, database.StateActive, time.Now()); err != nil {
			return Outcome{}, err
		}
		v.State = database.StateActive
	}

	socketDir, err := os.MkdirTemp("", "uvp-player-")
	if err != nil {
		return Outcome{Video: *v}, err
	}
	defer os.RemoveAll(socketDir)
	socketPath := filepath.Join(socketDir, "mpv.sock")

	args := []string{v.Ref, "--input-ipc-server=" + socketPath}
	if v.PositionSecs > 0 {
		args = append(args, fmt.Sprintf("--start=+%.3f", v.PositionSecs))
	}
	args = append(args, c.config.ExtraArgs...)

	cmd := exec.Command(c.config.Binary, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return Outcome{Video: *v}, fmt.Errorf("%w: %v: %v", uvp.ErrPlayerLaunch, c.config.Binary, err)
	}
	c.log.Infow("player started", "binary", c.config.Binary, "title", v.Title, "pid", cmd.Process.Pid)

	obsCtx, obsCancel := context.WithCancel(context.Background())
	defer obsCancel()
	reports := make(chan playbackReport, 1)
	go func() {
		reports <- observe(obsCtx, socketPath, c.config.IPCConnectTimeout)
	}()

	waits := make(chan error, 1)
	go func() { waits <- cmd.Wait() }()

	var exitErr error
	cancelled := false
	select {
	case exitErr = <-waits:
	case <-ctx.Done():
		cancelled = true
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case exitErr = <-waits:
		case <-time.After(c.config.TermGracePeriod):
			_ = cmd.Process.Kill()
			exitErr = <-waits
		}
	}
	obsCancel()
	report := <-reports

	outcome := c.recordOutcome(v, report)
	if cancelled {
		return outcome, ctx.Err()
	}
	if exitErr != nil {
		exitCode := -1
		if ee, ok := exitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		// Reported, but non-fatal: the video stays Active.
		return outcome, &uvp.PlayerExitError{ExitCode: exitCode, Err: exitErr}
	}
	if err := c.store.SetLastPlayed(v.ID, time.Now()); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// recordOutcome persists what the IPC observer saw. All of it is
// best-effort: a player without IPC reports nothing and that is fine.
func (c *Coordinator) recordOutcome(v *database.Video, report playbackReport) Outcome {
	outcome := Outcome{Video: *v, PositionSecs: report.position, DurationSecs: report.duration}
	if report.hasPosition {
		position := report.position
		if report.hasDuration && report.position >= report.duration-c.config.EndToleranceSecs {
			outcome.Finished = true
			position = 0
		}
		var duration *float64
		if report.hasDuration {
			duration = &report.duration
		}
		if err := c.store.SetPlayback(v.ID, position, duration); err != nil {
			c.log.Warnw("failed to record playback position", "id", v.ID, "error", err)
		}
	}
	// Videos added by bare URL carry their reference as a placeholder title;
	// the player knows better.
	if report.title != "" && v.Title == v.Ref {
		if err := c.store.SetTitle(v.ID, report.title); err != nil {
			c.log.Warnw("failed to record media title", "id", v.ID, "error", err)
		}
	}
	return outcome
}
