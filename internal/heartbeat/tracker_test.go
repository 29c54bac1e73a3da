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

package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestTracker_DueWhenMissing verifies a missing file means a heartbeat is needed.
func TestTracker_DueWhenMissing(t *testing.T) {
	tr := NewTracker(filepath.Join(t.TempDir(), "last_message.txt"))
	if !tr.Due(DefaultThreshold) {
		t.Error("Due() = false, want true for missing file")
	}
}

// TestTracker_Threshold verifies the elapsed >= threshold predicate.
func TestTracker_Threshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(filepath.Join(t.TempDir(), "state", "last_message.txt"))

	if err := tr.Touch(base); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	tests := []struct {
		name  string
		after time.Duration
		want  bool
	}{
		{"fresh", time.Hour, false},
		{"just below", 48*time.Hour - time.Second, false},
		{"exactly at threshold", 48 * time.Hour, true},
		{"stale", 72 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr.now = func() time.Time { return base.Add(tt.after) }
			if got := tr.Due(48 * time.Hour); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTracker_ReadsDiskEveryTime verifies another writer's update is observed.
func TestTracker_ReadsDiskEveryTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_message.txt")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := NewTracker(path)
	b := NewTracker(path)
	a.now = func() time.Time { return base.Add(50 * time.Hour) }

	if err := b.Touch(base); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !a.Due(48 * time.Hour) {
		t.Fatal("Due() = false, want true before refresh")
	}

	if err := b.Touch(base.Add(49 * time.Hour)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if a.Due(48 * time.Hour) {
		t.Error("Due() = true, want false after another tracker touched the file")
	}

	last, ok, err := a.Last()
	if err != nil || !ok {
		t.Fatalf("Last() = %v, %v, %v", last, ok, err)
	}
	if !last.Equal(base.Add(49 * time.Hour)) {
		t.Errorf("Last() = %v", last)
	}
}

// TestTracker_GarbledFileIsDue verifies an unparseable record counts as due.
func TestTracker_GarbledFileIsDue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_message.txt")
	if err := os.WriteFile(path, []byte("yesterday-ish"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !NewTracker(path).Due(time.Hour) {
		t.Error("Due() = false, want true for garbled file")
	}
}

// TestTracker_LocalTimestamp verifies zone-less ISO-8601 timestamps parse.
func TestTracker_LocalTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_message.txt")
	if err := os.WriteFile(path, []byte("2026-03-01T12:00:00.123456\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	last, ok, err := NewTracker(path).Last()
	if err != nil || !ok {
		t.Fatalf("Last() = %v, %v, %v", last, ok, err)
	}
	if last.Year() != 2026 || last.Hour() != 12 {
		t.Errorf("Last() = %v", last)
	}
}
