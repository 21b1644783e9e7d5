// Package monitoring - telemetry.go records request events to JSONL.
//
// DESIGN: Tracker appends one JSON object per line for each request through
// the gateway. Events are written immediately so tails see them in real time.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker appends request events to a JSONL file and optionally stdout.
type Tracker struct {
	config  TelemetryConfig
	logPath string
	count   int
	mu      sync.Mutex
}

// NewTracker creates a tracker, ensuring the log directory exists.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}
	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	return t, nil
}

// RecordRequest appends one request event.
func (t *Tracker) RecordRequest(event RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++

	line, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("request_id", event.RequestID).Msg("failed to marshal request event")
		return
	}

	if t.config.LogToStdout {
		os.Stdout.Write(append(line, '\n'))
	}
	if t.logPath != "" {
		t.appendLine(line)
	}
}

// RequestCount returns the number of events recorded so far.
func (t *Tracker) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Tracker) appendLine(line []byte) {
	f, err := os.OpenFile(t.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.Error().Err(err).Str("path", t.logPath).Msg("failed to open telemetry log")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Error().Err(err).Str("path", t.logPath).Msg("failed to write telemetry event")
	}
}
