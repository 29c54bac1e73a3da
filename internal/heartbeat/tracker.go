// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package heartbeat tracks when the last outbound message was delivered so
// a scheduler can keep a gateway's delivery window open.
//
// The timestamp lives in a single-value file and is always read from disk;
// nothing is cached between calls, so the answer survives restarts and is
// shared with the heartbeat CLI.
package heartbeat

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultThreshold is how long the channel may stay silent.
const DefaultThreshold = 48 * time.Hour

// Tracker persists the last successful send time.
type Tracker struct {
	path string
	now  func() time.Time
}

// NewTracker creates a tracker writing to path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path, now: time.Now}
}

// Touch records t as the last send time. The file is replaced atomically.
func (t *Tracker) Touch(at time.Time) error {
	if dir := filepath.Dir(t.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create heartbeat directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".heartbeat-*")
	if err != nil {
		return fmt.Errorf("create heartbeat temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(at.UTC().Format(time.RFC3339Nano)); err != nil {
		tmp.Close()
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close heartbeat: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("replace heartbeat file: %w", err)
	}
	return nil
}

// Last returns the recorded send time. ok is false when nothing has been
// recorded yet.
func (t *Tracker) Last() (last time.Time, ok bool, err error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read heartbeat: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	last, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Timestamps without a zone offset are local time.
		if l, lerr := time.ParseInLocation(localLayout, raw, time.Local); lerr == nil {
			return l, true, nil
		}
		return time.Time{}, false, fmt.Errorf("parse heartbeat %q: %w", raw, err)
	}
	return last, true, nil
}

const localLayout = "2006-01-02T15:04:05.999999999"

// Due reports whether at least threshold has elapsed since the last send.
// A missing or unreadable record counts as due.
func (t *Tracker) Due(threshold time.Duration) bool {
	last, ok, err := t.Last()
	if err != nil {
		slog.Error("heartbeat state unreadable, treating as due", "path", t.path, "error", err)
		return true
	}
	if !ok {
		slog.Info("no record of last message, heartbeat needed")
		return true
	}

	elapsed := t.now().Sub(last)
	if elapsed >= threshold {
		slog.Info("heartbeat needed",
			"hours_since_last", fmt.Sprintf("%.1f", elapsed.Hours()),
			"threshold", threshold,
		)
		return true
	}

	slog.Debug("heartbeat not needed yet", "hours_since_last", fmt.Sprintf("%.1f", elapsed.Hours()))
	return false
}
