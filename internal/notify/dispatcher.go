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

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxAttempts bounds delivery attempts for transient failures.
const DefaultMaxAttempts = 3

// Tracker records successful sends for the heartbeat.
type Tracker interface {
	Touch(at time.Time) error
	Due(threshold time.Duration) bool
}

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	MaxAttempts   int
	OrderTemplate string
	Tracker       Tracker
}

// OrderNotice carries the template variables of a readable-order
// notification.
type OrderNotice struct {
	Client string
	Count  int
}

// Dispatcher sends notifications through a single channel. Every successful
// send of any kind touches the heartbeat tracker.
type Dispatcher struct {
	ch            Channel
	tracker       Tracker
	maxAttempts   int
	orderTemplate string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewDispatcher creates a dispatcher for ch.
func NewDispatcher(ch Channel, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{
		ch:            ch,
		tracker:       cfg.Tracker,
		maxAttempts:   cfg.MaxAttempts,
		orderTemplate: cfg.OrderTemplate,
		sleep:         sleepContext,
		now:           time.Now,
	}
}

// Channel returns the name of the underlying channel.
func (d *Dispatcher) Channel() string {
	return d.ch.Name()
}

// Send delivers freeform text, truncated to the channel limit.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	limit := d.ch.MaxLength()
	width := runeWidth
	if uc, ok := d.ch.(UnitCounter); ok {
		width = uc.UnitLen
	}
	if out := truncate(text, limit, width); out != text {
		slog.Warn("message too long, truncating",
			"channel", d.ch.Name(),
			"length", measure(text, width),
			"limit", limit,
		)
		text = out
	}
	return d.deliver(ctx, "freeform", func(ctx context.Context) (string, error) {
		return d.ch.Send(ctx, text)
	})
}

// SendTemplate delivers a pre-approved template. vars are numbered from 1
// in order.
func (d *Dispatcher) SendTemplate(ctx context.Context, templateID string, vars []string) error {
	ts, ok := d.ch.(TemplateSender)
	if !ok {
		return fmt.Errorf("%s: %w", d.ch.Name(), ErrTemplateUnsupported)
	}
	return d.deliver(ctx, "template", func(ctx context.Context) (string, error) {
		return ts.SendTemplate(ctx, templateID, vars)
	})
}

// SendOrders delivers a readable-order notification. When an order template
// is configured and the channel supports templates the template is used
// instead of text.
func (d *Dispatcher) SendOrders(ctx context.Context, text string, n OrderNotice) error {
	if d.orderTemplate != "" {
		if _, ok := d.ch.(TemplateSender); ok {
			slog.Info("using template for order notification", "client", n.Client)
			return d.SendTemplate(ctx, d.orderTemplate, []string{n.Client, fmt.Sprintf("%d PDF(s)", n.Count)})
		}
	}
	return d.Send(ctx, text)
}

// HeartbeatDue reports whether the last successful send is older than
// threshold. Without a tracker a heartbeat is always due.
func (d *Dispatcher) HeartbeatDue(threshold time.Duration) bool {
	if d.tracker == nil {
		return true
	}
	return d.tracker.Due(threshold)
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, send func(context.Context) (string, error)) error {
	for attempt := 1; ; attempt++ {
		id, err := send(ctx)
		if err == nil {
			slog.Info("notification sent",
				"channel", d.ch.Name(),
				"kind", kind,
				"message_id", id,
				"attempt", attempt,
			)
			d.touch()
			return nil
		}

		if !IsTransient(err) {
			slog.Error("notification rejected",
				"channel", d.ch.Name(),
				"kind", kind,
				"error", err,
			)
			return err
		}

		if attempt >= d.maxAttempts {
			slog.Error("notification failed",
				"channel", d.ch.Name(),
				"kind", kind,
				"attempts", attempt,
				"error", err,
			)
			return fmt.Errorf("send %s after %d attempts: %w", kind, attempt, err)
		}

		wait := time.Duration(1<<attempt) * time.Second
		slog.Warn("transient notification failure, retrying",
			"channel", d.ch.Name(),
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"wait", wait,
			"error", err,
		)
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) touch() {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.Touch(d.now()); err != nil {
		slog.Error("failed to record last send", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
