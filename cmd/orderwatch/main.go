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

// Order monitor service
//
// Entry point for the long-running monitor. It:
//  1. Loads and validates configuration from .env, config.yaml and the environment
//  2. Opens the processed-message ledger (file, Redis or PostgreSQL)
//  3. Builds the analyzer, notification channel and IMAP client
//  4. Sends a startup notification and runs scan cycles on a fixed interval
//  5. Serves health, status and manual-trigger endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/orderwatch/internal/analyzer"
	"github.com/bcem/orderwatch/internal/config"
	"github.com/bcem/orderwatch/internal/dedup"
	"github.com/bcem/orderwatch/internal/heartbeat"
	"github.com/bcem/orderwatch/internal/llm"
	"github.com/bcem/orderwatch/internal/lock"
	"github.com/bcem/orderwatch/internal/mailbox"
	"github.com/bcem/orderwatch/internal/notify"
	"github.com/bcem/orderwatch/internal/pdftext"
	"github.com/bcem/orderwatch/internal/render"
	"github.com/bcem/orderwatch/internal/scan"
	"github.com/bcem/orderwatch/internal/status"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			slog.Error("invalid configuration", "missing", verr.Missing, "invalid", verr.Invalid)
		} else {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("starting order monitor",
		"clients", len(cfg.MonitoredClients),
		"interval", cfg.CheckInterval,
		"days_back", cfg.DaysBack,
		"provider", cfg.NotificationProvider,
		"llm", cfg.LLM.Provider,
		"ledger", cfg.LedgerBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Graceful Shutdown ---
	// Registered before any connection is opened so a signal during
	// startup cancels the dials instead of killing the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// --- Connect to Redis (ledger or cycle guard) ---
	var rdb *redis.Client
	if cfg.LedgerBackend == config.LedgerRedis || cfg.CycleLock == "redis" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
	}

	// --- Processed-message Ledger ---
	store, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		slog.Error("failed to open ledger store", "backend", cfg.LedgerBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	ledger, err := dedup.Open(ctx, store)
	if err != nil {
		slog.Error("failed to load ledger", "error", err)
		os.Exit(1)
	}

	// --- Analyzer ---
	completer, err := newCompleter(ctx, cfg.LLM)
	if err != nil {
		slog.Error("failed to create LLM client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	an := analyzer.New(completer, analyzer.Config{
		MaxChars:  cfg.LLM.MaxChars,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	// --- Notification Channel ---
	ch, err := newChannel(cfg)
	if err != nil {
		slog.Error("failed to create notification channel", "provider", cfg.NotificationProvider, "error", err)
		os.Exit(1)
	}
	tracker := heartbeat.NewTracker(cfg.HeartbeatPath)
	dispatcher := notify.NewDispatcher(ch, notify.DispatcherConfig{
		MaxAttempts:   cfg.NotifyMaxAttempts,
		OrderTemplate: cfg.Twilio.TemplateSID,
		Tracker:       tracker,
	})

	// --- Mailbox ---
	mc := mailbox.NewClient(mailboxConfig(ctx, cfg.IMAP))

	cycle := scan.NewCycle(scan.CycleConfig{
		Dial: func(ctx context.Context) (scan.Mailbox, error) {
			s, err := mc.Dial(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Extractor: pdftext.Extractor{},
		Analyzer:  an,
		Notifier:  dispatcher,
		Ledger:    ledger,
		Senders:   cfg.MonitoredClients,
		DaysBack:  cfg.DaysBack,
	})

	// --- Scheduler ---
	schedCfg := scan.SchedulerConfig{
		Runner:   cycle,
		Interval: cfg.CheckInterval,
	}
	if cfg.CycleLock == "redis" {
		schedCfg.Guard = lock.NewRedisGuard(rdb, lock.DefaultKey, cfg.CycleLockTTL)
	}
	if cfg.HeartbeatInProcess {
		schedCfg.Heartbeat = dispatcher
		schedCfg.HeartbeatThreshold = cfg.HeartbeatThreshold
	}
	scheduler := scan.NewScheduler(schedCfg)

	// --- Startup Notification ---
	if err := dispatcher.Send(ctx, render.Startup(cfg.IMAP.User, len(cfg.MonitoredClients), cfg.CheckInterval)); err != nil {
		slog.Warn("startup notification failed", "error", err)
	}

	// --- Status Server ---
	if cfg.Port != 0 {
		ready, err := status.Serve(ctx, cfg.Port, status.NewHandler(scheduler, ledger))
		if err != nil {
			slog.Error("failed to start status server", "error", err)
			os.Exit(1)
		}
		<-ready
	}

	scheduler.Run(ctx)

	slog.Info("order monitor stopped", "processed", ledger.Len())
}

// openStore builds the ledger's durable store. The returned func releases
// any connection the store owns.
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (dedup.Store, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		return dedup.NewRedisStore(rdb, cfg.LedgerRedisKey), func() {}, nil
	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create Postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		store, err := dedup.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("connected to PostgreSQL")
		return store, pool.Close, nil
	default:
		return dedup.NewFileStore(cfg.LedgerPath), func() {}, nil
	}
}

func newCompleter(ctx context.Context, cfg config.LLMConfig) (llm.Completer, error) {
	if cfg.Provider == config.LLMBedrock {
		b, err := llm.NewBedrock(ctx, cfg.AWSRegion, cfg.BedrockModelID)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:     cfg.AnthropicAPIKey,
		Model:      cfg.AnthropicModel,
		BaseURL:    cfg.AnthropicBaseURL,
		MaxRetries: 2,
	}), nil
}

func newChannel(cfg *config.Config) (notify.Channel, error) {
	if cfg.NotificationProvider == config.ProviderTwilio {
		return notify.NewTwilio(notify.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			To:         cfg.Twilio.To,
		}), nil
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

func mailboxConfig(ctx context.Context, cfg config.IMAPConfig) mailbox.Config {
	mc := mailbox.Config{
		Server:   cfg.Server,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Mailbox:  cfg.Mailbox,
	}
	if cfg.Auth == config.AuthXOAuth2 {
		mc.Tokens = mailbox.TokenSource(ctx, mailbox.OAuthConfig{
			TenantID:     cfg.OAuthTenantID,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Scope:        cfg.OAuthScope,
		})
	}
	return mc
}
