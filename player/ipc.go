package player

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"time"
)

// mpv's JSON IPC: newline-delimited JSON objects over a unix socket.
// Requests carry a "command" array; property changes arrive as
// {"event":"property-change","name":...,"data":...} events.

type ipcRequest struct {
	Command []interface{} `json:"command"`
}

type ipcEvent struct {
	Event string      `json:"event"`
	Name  string      `json:"name"`
	Data  interface{} `json:"data"`
}

// playbackReport is the last-seen playback state when the connection closed.
type playbackReport struct {
	position    float64
	hasPosition bool
	duration    float64
	hasDuration bool
	title       string
}

var observedProperties = []string{"playback-time", "duration", "media-title"}

// observe connects to the player's IPC socket, subscribes to playback
// properties, and consumes property-change events until the player exits or
// ctx is cancelled. Failure to connect just yields an empty report.
func observe(ctx context.Context, socketPath string, connectTimeout time.Duration) playbackReport {
	var report playbackReport

	conn := connect(ctx, socketPath, connectTimeout)
	if conn == nil {
		return report
	}
	defer conn.Close()
	go func() {
		// Unblocks the decoder below.
		<-ctx.Done()
		conn.Close()
	}()

	enc := json.NewEncoder(conn)
	for i, property := range observedProperties {
		if err := enc.Encode(ipcRequest{Command: []interface{}{"observe_property", i + 1, property}}); err != nil {
			return report
		}
	}

	dec := json.NewDecoder(conn)
	for {
		var event ipcEvent
		if err := dec.Decode(&event); err != nil {
			// EOF when the player exits.
			return report
		}
		if event.Event != "property-change" {
			continue
		}
		switch event.Name {
		case "playback-time":
			if seconds, ok := event.Data.(float64); ok {
				report.position = seconds
				report.hasPosition = true
			}
		case "duration":
			if seconds, ok := event.Data.(float64); ok {
				report.duration = seconds
				report.hasDuration = true
			}
		case "media-title":
			if title, ok := event.Data.(string); ok {
				report.title = title
			}
		}
	}
}

// connect polls for the socket to appear, then dials it. The player creates
// the socket shortly after startup; players that never do hit the timeout.
func connect(ctx context.Context, socketPath string, timeout time.Duration) net.Conn {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(socketPath); err == nil {
			conn, err := net.DialTimeout("unix", socketPath, timeout)
			if err == nil {
				return conn
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case <-tick.C:
		}
	}
}
