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

package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/orderwatch/internal/lock"
	"github.com/bcem/orderwatch/internal/render"
)

// Runner runs a single cycle.
type Runner interface {
	Run(ctx context.Context) *Result
}

// Heartbeater sends keep-alive messages when the channel has been quiet.
type Heartbeater interface {
	HeartbeatDue(threshold time.Duration) bool
	Send(ctx context.Context, text string) error
}

// SchedulerConfig holds scheduler settings. Heartbeat is optional.
type SchedulerConfig struct {
	Runner             Runner
	Interval           time.Duration
	Guard              lock.Guard
	Heartbeat          Heartbeater
	HeartbeatThreshold time.Duration
}

// Scheduler runs cycles on a fixed interval. Cycles never overlap: a
// trigger that finds one running is skipped.
type Scheduler struct {
	runner      Runner
	interval    time.Duration
	guard       lock.Guard
	heartbeat   Heartbeater
	hbThreshold time.Duration

	mu   sync.RWMutex
	last *Result
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler. Without a guard a local one is used.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	guard := cfg.Guard
	if guard == nil {
		guard = lock.NewLocal()
	}
	return &Scheduler{
		runner:      cfg.Runner,
		interval:    cfg.Interval,
		guard:       guard,
		heartbeat:   cfg.Heartbeat,
		hbThreshold: cfg.HeartbeatThreshold,
	}
}

// Run starts the scan loop. It runs one cycle immediately and blocks until
// ctx is cancelled and any triggered cycle has finished.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", "interval", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a cycle now unless one is already running. It reports
// whether a cycle ran.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, bool) {
	ok, err := s.guard.TryAcquire(ctx)
	if err != nil {
		slog.Error("cycle guard unavailable, skipping cycle", "error", err)
		return nil, false
	}
	if !ok {
		slog.Warn("previous cycle still running, skipping")
		return nil, false
	}
	defer s.release()
	return s.execute(ctx), true
}

// Trigger starts a cycle in the background. It returns false when a cycle
// is already running.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	ok, err := s.guard.TryAcquire(ctx)
	if err != nil {
		slog.Error("cycle guard unavailable", "error", err)
		return false
	}
	if !ok {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		s.execute(ctx)
	}()
	return true
}

// Last returns the result of the most recent completed cycle, or nil.
func (s *Scheduler) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Wait blocks until background cycles started by Trigger finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) execute(ctx context.Context) *Result {
	result := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	if s.heartbeat != nil && ctx.Err() == nil && s.heartbeat.HeartbeatDue(s.hbThreshold) {
		slog.Info("channel quiet past threshold, sending heartbeat", "threshold", s.hbThreshold)
		if err := s.heartbeat.Send(ctx, render.Heartbeat()); err != nil {
			slog.Error("heartbeat failed", "error", err)
		}
	}
	return result
}

func (s *Scheduler) release() {
	// Release even when the cycle's ctx is done.
	if err := s.guard.Release(context.Background()); err != nil {
		slog.Warn("cycle guard release failed", "error", err)
	}
}
