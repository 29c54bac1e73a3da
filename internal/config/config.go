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

// Package config loads configuration from .env, an optional config.yaml and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Notification providers.
const (
	ProviderTelegram = "telegram"
	ProviderTwilio   = "twilio"
)

// LLM providers.
const (
	LLMAnthropic = "anthropic"
	LLMBedrock   = "bedrock"
)

// Ledger backends.
const (
	LedgerFile     = "file"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

// IMAP authentication modes.
const (
	AuthPassword = "password"
	AuthXOAuth2  = "xoauth2"
)

// IMAPConfig holds mailbox connection settings.
type IMAPConfig struct {
	Server   string
	Port     int
	User     string
	Password string
	Mailbox  string

	Auth              string // "password" or "xoauth2"
	OAuthTenantID     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScope        string
}

// LLMConfig holds analyzer backend settings.
type LLMConfig struct {
	Provider         string
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	AWSRegion        string
	BedrockModelID   string
	MaxChars         int
	MaxTokens        int
}

// TelegramConfig holds chat-bot channel credentials.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
	rawChat  string
}

// TwilioConfig holds SMS/WhatsApp gateway credentials.
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	From        string
	To          string
	TemplateSID string
}

// Config holds all configuration for the monitor.
type Config struct {
	IMAP IMAPConfig
	LLM  LLMConfig

	NotificationProvider string
	Telegram             TelegramConfig
	Twilio               TwilioConfig
	NotifyMaxAttempts    int

	MonitoredClients []string
	CheckInterval    time.Duration
	DaysBack         int

	// Ledger
	LedgerBackend  string
	LedgerPath     string
	LedgerRedisKey string
	RedisURL       string
	DatabaseURL    string

	// Heartbeat
	HeartbeatPath      string
	HeartbeatThreshold time.Duration
	HeartbeatInProcess bool

	// Cycle guard
	CycleLock    string // "local" or "redis"
	CycleLockTTL time.Duration

	// Server (health/status only); 0 disables it
	Port int

	LogLevel slog.Level

	malformed []malformedVar
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	MonitoredClients []string `yaml:"monitored_clients"`
	Ledger           struct {
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		RedisKey string `yaml:"redis_key"`
	} `yaml:"ledger"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads .env (if present), config.yaml (if present, with env var
// expansion) and environment variables. It does not validate; call
// Validate before using the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var raw rawConfig
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	var env envReader
	cfg := &Config{
		IMAP: IMAPConfig{
			Server:            os.Getenv("IMAP_SERVER"),
			Port:              env.intOr("IMAP_PORT", 993),
			User:              os.Getenv("IMAP_USER"),
			Password:          os.Getenv("IMAP_PASSWORD"),
			Mailbox:           envOrDefault("IMAP_MAILBOX", "INBOX"),
			Auth:              strings.ToLower(envOrDefault("IMAP_AUTH", AuthPassword)),
			OAuthTenantID:     os.Getenv("IMAP_OAUTH_TENANT_ID"),
			OAuthClientID:     os.Getenv("IMAP_OAUTH_CLIENT_ID"),
			OAuthClientSecret: os.Getenv("IMAP_OAUTH_CLIENT_SECRET"),
			OAuthScope:        envOrDefault("IMAP_OAUTH_SCOPE", "https://outlook.office365.com/.default"),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(envOrDefault("LLM_PROVIDER", LLMAnthropic)),
			AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
			AnthropicBaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			AWSRegion:        envOrDefault("AWS_REGION", "us-east-1"),
			BedrockModelID:   envOrDefault("BEDROCK_MODEL_ID", "anthropic.claude-3-5-haiku-20241022-v1:0"),
			MaxChars:         env.intOr("ANALYZER_MAX_CHARS", 4000),
			MaxTokens:        env.intOr("ANALYZER_MAX_TOKENS", 1024),
		},
		NotificationProvider: normalizeProvider(envOrDefault("NOTIFICATION_PROVIDER", ProviderTelegram)),
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			rawChat:  os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Twilio: TwilioConfig{
			AccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
			From:        os.Getenv("TWILIO_WHATSAPP_FROM"),
			To:          os.Getenv("TWILIO_WHATSAPP_TO"),
			TemplateSID: os.Getenv("TWILIO_WHATSAPP_TEMPLATE_SID"),
		},
		NotifyMaxAttempts: env.intOr("NOTIFY_MAX_ATTEMPTS", 3),

		CheckInterval: time.Duration(env.intOr("CHECK_INTERVAL_MINUTES", 10)) * time.Minute,
		DaysBack:      env.intOr("DAYS_BACK_TO_SEARCH", 1),

		LedgerBackend:  strings.ToLower(firstNonEmpty(raw.Ledger.Backend, envOrDefault("LEDGER_BACKEND", LedgerFile))),
		LedgerPath:     firstNonEmpty(raw.Ledger.Path, envOrDefault("LEDGER_PATH", "logs/processed_emails.txt")),
		LedgerRedisKey: firstNonEmpty(raw.Ledger.RedisKey, envOrDefault("LEDGER_REDIS_KEY", "orderwatch:processed")),
		RedisURL:       firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL:    firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),

		HeartbeatPath:      envOrDefault("HEARTBEAT_PATH", "logs/last_message.txt"),
		HeartbeatThreshold: env.durationOr("HEARTBEAT_THRESHOLD", 48*time.Hour),
		HeartbeatInProcess: env.boolOr("HEARTBEAT_IN_PROCESS", false),

		CycleLock:    strings.ToLower(envOrDefault("CYCLE_LOCK", "local")),
		CycleLockTTL: env.durationOr("CYCLE_LOCK_TTL", 30*time.Minute),

		Port:     env.intOr("PORT", 8080),
		LogLevel: env.level("LOG_LEVEL"),
	}
	cfg.malformed = env.malformed

	if len(raw.MonitoredClients) > 0 {
		cfg.MonitoredClients = splitClients(strings.Join(raw.MonitoredClients, ","))
	} else {
		cfg.MonitoredClients = splitClients(os.Getenv("MONITORED_CLIENTS"))
	}

	if id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.rawChat), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	return cfg, nil
}

// ValidationError lists every configuration problem found at once.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

// Validate checks that every key required by the selected providers and
// backends is set. It returns a *ValidationError naming all of them.
func (c *Config) Validate() error {
	v := &ValidationError{}
	require := v.require

	for _, m := range c.malformed {
		v.Invalid = append(v.Invalid, m.msg)
	}

	require("IMAP_SERVER", c.IMAP.Server)
	require("IMAP_USER", c.IMAP.User)
	if len(c.MonitoredClients) == 0 {
		v.Missing = append(v.Missing, "MONITORED_CLIENTS")
	}

	switch c.IMAP.Auth {
	case AuthPassword:
		require("IMAP_PASSWORD", c.IMAP.Password)
	case AuthXOAuth2:
		require("IMAP_OAUTH_TENANT_ID", c.IMAP.OAuthTenantID)
		require("IMAP_OAUTH_CLIENT_ID", c.IMAP.OAuthClientID)
		require("IMAP_OAUTH_CLIENT_SECRET", c.IMAP.OAuthClientSecret)
	default:
		v.Invalid = append(v.Invalid, fmt.Sprintf("IMAP_AUTH %q must be %q or %q", c.IMAP.Auth, AuthPassword, AuthXOAuth2))
	}

	switch c.LLM.Provider {
	case LLMAnthropic:
		require("ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey)
	case LLMBedrock:
		require("AWS_REGION", c.LLM.AWSRegion)
	default:
		v.Invalid = append(v.Invalid, fmt.Sprintf("LLM_PROVIDER %q must be %q or %q", c.LLM.Provider, LLMAnthropic, LLMBedrock))
	}

	c.checkNotifier(v)

	switch c.LedgerBackend {
	case LedgerFile:
		require("LEDGER_PATH", c.LedgerPath)
	case LedgerRedis:
		require("REDIS_URL", c.RedisURL)
	case LedgerPostgres:
		require("DATABASE_URL", c.DatabaseURL)
	default:
		v.Invalid = append(v.Invalid, fmt.Sprintf("LEDGER_BACKEND %q must be file, redis or postgres", c.LedgerBackend))
	}

	switch c.CycleLock {
	case "local":
	case "redis":
		if c.LedgerBackend != LedgerRedis {
			require("REDIS_URL", c.RedisURL)
		}
	default:
		v.Invalid = append(v.Invalid, fmt.Sprintf("CYCLE_LOCK %q must be local or redis", c.CycleLock))
	}

	if c.CheckInterval <= 0 {
		v.Invalid = append(v.Invalid, "CHECK_INTERVAL_MINUTES must be positive")
	}
	if c.DaysBack < 1 {
		v.Invalid = append(v.Invalid, "DAYS_BACK_TO_SEARCH must be at least 1")
	}

	if len(v.Missing) > 0 || len(v.Invalid) > 0 {
		return v
	}
	return nil
}

// ValidateNotifier checks only the notification settings, for tools that
// send without scanning the mailbox.
func (c *Config) ValidateNotifier() error {
	v := &ValidationError{}
	for _, m := range c.malformed {
		if notifierKeys[m.key] {
			v.Invalid = append(v.Invalid, m.msg)
		}
	}
	c.checkNotifier(v)
	if len(v.Missing) > 0 || len(v.Invalid) > 0 {
		return v
	}
	return nil
}

// notifierKeys are the typed settings read by notification-only tools.
var notifierKeys = map[string]bool{
	"NOTIFY_MAX_ATTEMPTS": true,
	"HEARTBEAT_THRESHOLD": true,
	"LOG_LEVEL":           true,
}

func (c *Config) checkNotifier(v *ValidationError) {
	switch c.NotificationProvider {
	case ProviderTelegram:
		v.require("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
		v.require("TELEGRAM_CHAT_ID", c.Telegram.rawChat)
		if c.Telegram.rawChat != "" && c.Telegram.ChatID == 0 {
			v.Invalid = append(v.Invalid, fmt.Sprintf("TELEGRAM_CHAT_ID %q is not numeric", c.Telegram.rawChat))
		}
	case ProviderTwilio:
		v.require("TWILIO_ACCOUNT_SID", c.Twilio.AccountSID)
		v.require("TWILIO_AUTH_TOKEN", c.Twilio.AuthToken)
		v.require("TWILIO_WHATSAPP_FROM", c.Twilio.From)
		v.require("TWILIO_WHATSAPP_TO", c.Twilio.To)
	default:
		v.Invalid = append(v.Invalid, fmt.Sprintf("NOTIFICATION_PROVIDER %q must be %q or %q", c.NotificationProvider, ProviderTelegram, ProviderTwilio))
	}
}

func (v *ValidationError) require(key, value string) {
	if strings.TrimSpace(value) == "" {
		v.Missing = append(v.Missing, key)
	}
}

// normalizeProvider maps the generic provider names onto concrete ones.
func normalizeProvider(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "chat-bot", "chatbot":
		return ProviderTelegram
	case "sms-gateway", "whatsapp", "sms":
		return ProviderTwilio
	}
	return p
}

func splitClients(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// envReader parses typed environment values. A value that fails to parse
// falls back to the default and is remembered so Validate can report it.
type envReader struct {
	malformed []malformedVar
}

type malformedVar struct {
	key string
	msg string
}

func (r *envReader) reject(key, value, want string) {
	r.malformed = append(r.malformed, malformedVar{
		key: key,
		msg: fmt.Sprintf("%s %q is not %s", key, value, want),
	})
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.reject(key, v, "an integer")
		return fallback
	}
	return n
}

func (r *envReader) boolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.reject(key, v, "a boolean")
		return fallback
	}
	return b
}

func (r *envReader) durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.reject(key, v, "a duration")
		return fallback
	}
	return d
}

// level parses a slog level name. Unset means info.
func (r *envReader) level(key string) slog.Level {
	v := os.Getenv(key)
	var lvl slog.Level
	if v == "" {
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		r.reject(key, v, "a log level")
		return slog.LevelInfo
	}
	return lvl
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
