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

// Order monitor heartbeat command
//
// One-shot CLI for cron. It sends a keep-alive message when the last
// successful notification is older than the threshold, so the messaging
// channel's delivery window never closes.
//
// Usage:
//
//	go run ./cmd/heartbeat/ [--threshold 48h] [--force] [--template]
//	go run ./cmd/heartbeat/ --history 20
//
// --history lists recent Twilio deliveries to the configured recipient with
// their status and error code, and sends nothing.
//
// Exit status is 0 when no heartbeat was due or it was sent, 1 on failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bcem/orderwatch/internal/config"
	"github.com/bcem/orderwatch/internal/heartbeat"
	"github.com/bcem/orderwatch/internal/notify"
	"github.com/bcem/orderwatch/internal/render"
)

// sendTimeout bounds the whole send including retries.
const sendTimeout = 2 * time.Minute

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	thresholdFlag := flag.Duration("threshold", 0, "Send when the last notification is older than this (default HEARTBEAT_THRESHOLD)")
	forceFlag := flag.Bool("force", false, "Send even if a heartbeat is not due")
	templateFlag := flag.Bool("template", false, "Send the approved template (TWILIO_WHATSAPP_TEMPLATE_SID) instead of free text")
	historyFlag := flag.Int("history", 0, "List the last N Twilio deliveries and exit")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if *historyFlag > 0 {
		if cfg.NotificationProvider != config.ProviderTwilio {
			fmt.Fprintf(os.Stderr, "Error: --history requires NOTIFICATION_PROVIDER=twilio\n\n")
			flag.Usage()
			os.Exit(1)
		}
		if err := showHistory(cfg, *historyFlag); err != nil {
			slog.Error("failed to list deliveries", "error", err)
			os.Exit(1)
		}
		return
	}

	threshold := cfg.HeartbeatThreshold
	if *thresholdFlag > 0 {
		threshold = *thresholdFlag
	}

	if *templateFlag && cfg.Twilio.TemplateSID == "" {
		fmt.Fprintf(os.Stderr, "Error: --template requires TWILIO_WHATSAPP_TEMPLATE_SID\n\n")
		flag.Usage()
		os.Exit(1)
	}

	tracker := heartbeat.NewTracker(cfg.HeartbeatPath)
	if last, ok, err := tracker.Last(); err != nil {
		slog.Warn("failed to read last send time", "error", err)
	} else if ok {
		slog.Info("last notification", "at", last, "age", time.Since(last).Round(time.Minute))
	}

	if !*forceFlag && !tracker.Due(threshold) {
		slog.Info("heartbeat not due", "threshold", threshold)
		return
	}

	ch, err := newChannel(cfg)
	if err != nil {
		slog.Error("failed to create notification channel", "provider", cfg.NotificationProvider, "error", err)
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(ch, notify.DispatcherConfig{
		MaxAttempts: cfg.NotifyMaxAttempts,
		Tracker:     tracker,
	})

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if *templateFlag {
		err = dispatcher.SendTemplate(ctx, cfg.Twilio.TemplateSID, []string{"Order monitor", "heartbeat"})
	} else {
		err = dispatcher.Send(ctx, render.Heartbeat())
	}
	if err != nil {
		if errors.Is(err, notify.ErrWindowClosed) {
			slog.Error("delivery window closed; retry with --template", "error", err)
		} else {
			slog.Error("heartbeat failed", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("heartbeat sent", "channel", dispatcher.Channel(), "template", *templateFlag)
}

// showHistory logs the most recent deliveries, newest first.
func showHistory(cfg *config.Config, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	deliveries, err := newTwilio(cfg).History(ctx, n)
	if err != nil {
		return err
	}
	for _, d := range deliveries {
		slog.Info("delivery",
			"sid", d.SID,
			"status", d.Status,
			"date_sent", d.DateSent,
			"error_code", d.ErrorCode,
			"error_message", d.ErrorMessage,
		)
	}
	slog.Info("history listed", "to", cfg.Twilio.To, "count", len(deliveries))
	return nil
}

func newTwilio(cfg *config.Config) *notify.Twilio {
	return notify.NewTwilio(notify.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		To:         cfg.Twilio.To,
	})
}

func newChannel(cfg *config.Config) (notify.Channel, error) {
	if cfg.NotificationProvider == config.ProviderTwilio {
		return newTwilio(cfg), nil
	}
	tg, err := notify.NewTelegram(notify.TelegramConfig{
		Token:  cfg.Telegram.BotToken,
		ChatID: cfg.Telegram.ChatID,
	})
	if err != nil {
		return nil, err
	}
	return tg, nil
}
