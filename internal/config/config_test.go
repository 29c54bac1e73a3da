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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// setEnv isolates config tests from the developer's environment.
func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	for _, k := range []string{
		"IMAP_SERVER", "IMAP_USER", "IMAP_PASSWORD", "IMAP_AUTH", "ANTHROPIC_API_KEY",
		"LLM_PROVIDER", "NOTIFICATION_PROVIDER", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_FROM", "TWILIO_WHATSAPP_TO",
		"MONITORED_CLIENTS", "CHECK_INTERVAL_MINUTES", "DAYS_BACK_TO_SEARCH", "LEDGER_BACKEND",
		"REDIS_URL", "DATABASE_URL", "CYCLE_LOCK", "IMAP_PORT", "LOG_LEVEL", "PORT",
		"NOTIFY_MAX_ATTEMPTS", "HEARTBEAT_THRESHOLD", "HEARTBEAT_IN_PROCESS",
	} {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

// TestLoad_Defaults verifies default values when only required keys are set.
func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{
		"IMAP_SERVER":        "mail.example.com",
		"IMAP_USER":          "sales@example.com",
		"IMAP_PASSWORD":      "secret",
		"ANTHROPIC_API_KEY":  "sk-test",
		"TELEGRAM_BOT_TOKEN": "123:abc",
		"TELEGRAM_CHAT_ID":   "-1001",
		"MONITORED_CLIENTS":  " Buyer@Acme.com, ops@widgets.io ,,",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	if cfg.IMAP.Port != 993 {
		t.Errorf("IMAP.Port = %d, want 993", cfg.IMAP.Port)
	}
	if cfg.CheckInterval != 10*time.Minute {
		t.Errorf("CheckInterval = %v, want 10m", cfg.CheckInterval)
	}
	if cfg.DaysBack != 1 {
		t.Errorf("DaysBack = %d, want 1", cfg.DaysBack)
	}
	if cfg.LLM.MaxChars != 4000 {
		t.Errorf("LLM.MaxChars = %d, want 4000", cfg.LLM.MaxChars)
	}
	if cfg.Telegram.ChatID != -1001 {
		t.Errorf("Telegram.ChatID = %d, want -1001", cfg.Telegram.ChatID)
	}
	want := []string{"buyer@acme.com", "ops@widgets.io"}
	if !reflect.DeepEqual(cfg.MonitoredClients, want) {
		t.Errorf("MonitoredClients = %v, want %v", cfg.MonitoredClients, want)
	}
	if cfg.HeartbeatThreshold != 48*time.Hour {
		t.Errorf("HeartbeatThreshold = %v, want 48h", cfg.HeartbeatThreshold)
	}
}

// TestValidate_EnumeratesAllMissing verifies every missing key is reported
// in a single error rather than only the first.
func TestValidate_EnumeratesAllMissing(t *testing.T) {
	setEnv(t, map[string]string{
		"NOTIFICATION_PROVIDER": "sms-gateway",
		"IMAP_SERVER":           "mail.example.com",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NotificationProvider != ProviderTwilio {
		t.Errorf("NotificationProvider = %q, want %q", cfg.NotificationProvider, ProviderTwilio)
	}

	err = cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}

	want := []string{
		"IMAP_USER", "MONITORED_CLIENTS", "IMAP_PASSWORD", "ANTHROPIC_API_KEY",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_FROM", "TWILIO_WHATSAPP_TO",
	}
	if !reflect.DeepEqual(verr.Missing, want) {
		t.Errorf("Missing = %v, want %v", verr.Missing, want)
	}
}

// TestValidate_InvalidProvider verifies unknown provider names are rejected.
func TestValidate_InvalidProvider(t *testing.T) {
	setEnv(t, map[string]string{
		"IMAP_SERVER":           "mail.example.com",
		"IMAP_USER":             "sales@example.com",
		"IMAP_PASSWORD":         "secret",
		"ANTHROPIC_API_KEY":     "sk-test",
		"MONITORED_CLIENTS":     "a@b.com",
		"NOTIFICATION_PROVIDER": "pager",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var verr *ValidationError
	if err := cfg.Validate(); !errors.As(err, &verr) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	if len(verr.Invalid) != 1 {
		t.Errorf("Invalid = %v, want one entry", verr.Invalid)
	}
}

// validEnv is a complete telegram/anthropic configuration.
func validEnv(extra map[string]string) map[string]string {
	kv := map[string]string{
		"IMAP_SERVER":        "mail.example.com",
		"IMAP_USER":          "sales@example.com",
		"IMAP_PASSWORD":      "secret",
		"ANTHROPIC_API_KEY":  "sk-test",
		"TELEGRAM_BOT_TOKEN": "123:abc",
		"TELEGRAM_CHAT_ID":   "-1001",
		"MONITORED_CLIENTS":  "a@b.com",
	}
	for k, v := range extra {
		kv[k] = v
	}
	return kv
}

// TestValidate_MalformedValues verifies unparseable typed values are reported
// instead of silently replaced by their defaults.
func TestValidate_MalformedValues(t *testing.T) {
	setEnv(t, validEnv(map[string]string{
		"IMAP_PORT":              "abc",
		"CHECK_INTERVAL_MINUTES": "x",
		"HEARTBEAT_IN_PROCESS":   "maybe",
		"HEARTBEAT_THRESHOLD":    "2 days",
		"LOG_LEVEL":              "loud",
	}))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var verr *ValidationError
	if err := cfg.Validate(); !errors.As(err, &verr) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	want := []string{
		`IMAP_PORT "abc" is not an integer`,
		`CHECK_INTERVAL_MINUTES "x" is not an integer`,
		`HEARTBEAT_THRESHOLD "2 days" is not a duration`,
		`HEARTBEAT_IN_PROCESS "maybe" is not a boolean`,
		`LOG_LEVEL "loud" is not a log level`,
	}
	if !reflect.DeepEqual(verr.Invalid, want) {
		t.Errorf("Invalid = %q, want %q", verr.Invalid, want)
	}
	if len(verr.Missing) != 0 {
		t.Errorf("Missing = %v, want none", verr.Missing)
	}

	// Only the keys a notification tool reads fail ValidateNotifier.
	if err := cfg.ValidateNotifier(); !errors.As(err, &verr) {
		t.Fatalf("ValidateNotifier() = %v, want *ValidationError", err)
	}
	want = []string{
		`HEARTBEAT_THRESHOLD "2 days" is not a duration`,
		`LOG_LEVEL "loud" is not a log level`,
	}
	if !reflect.DeepEqual(verr.Invalid, want) {
		t.Errorf("ValidateNotifier Invalid = %q, want %q", verr.Invalid, want)
	}
}

// TestValidate_DaysBack verifies the search window must cover at least one
// day.
func TestValidate_DaysBack(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"1", false},
		{"7", false},
		{"0", true},
		{"-2", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setEnv(t, validEnv(map[string]string{"DAYS_BACK_TO_SEARCH": tt.value}))
			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			err = cfg.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if !reflect.DeepEqual(verr.Invalid, []string{"DAYS_BACK_TO_SEARCH must be at least 1"}) {
				t.Errorf("Invalid = %v", verr.Invalid)
			}
		})
	}
}

// TestValidateNotifier verifies that only notification keys are checked.
func TestValidateNotifier(t *testing.T) {
	setEnv(t, map[string]string{
		"NOTIFICATION_PROVIDER": "whatsapp",
		"TWILIO_ACCOUNT_SID":    "AC123",
		"TWILIO_AUTH_TOKEN":     "token",
		"TWILIO_WHATSAPP_FROM":  "whatsapp:+14155238886",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var verr *ValidationError
	if err := cfg.ValidateNotifier(); !errors.As(err, &verr) {
		t.Fatalf("ValidateNotifier() = %v, want *ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "TWILIO_WHATSAPP_TO" {
		t.Errorf("Missing = %v, want [TWILIO_WHATSAPP_TO]", verr.Missing)
	}

	t.Setenv("TWILIO_WHATSAPP_TO", "whatsapp:+34600000000")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		t.Errorf("ValidateNotifier() = %v, want nil", err)
	}
}

// TestLoad_YAML verifies config.yaml values and ${VAR} expansion.
func TestLoad_YAML(t *testing.T) {
	setEnv(t, map[string]string{"LEDGER_HOST": "redis.internal"})

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
monitored_clients:
  - buyer@acme.com
  - ops@widgets.io
ledger:
  backend: redis
redis:
  url: redis://${LEDGER_HOST}:6379/0
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LedgerBackend != LedgerRedis {
		t.Errorf("LedgerBackend = %q, want redis", cfg.LedgerBackend)
	}
	if cfg.RedisURL != "redis://redis.internal:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if len(cfg.MonitoredClients) != 2 {
		t.Errorf("MonitoredClients = %v, want 2 entries", cfg.MonitoredClients)
	}
}

// TestLoad_DotEnv verifies that .env values fill unset variables.
func TestLoad_DotEnv(t *testing.T) {
	setEnv(t, nil)
	t.Setenv("IMAP_PORT", "")
	os.Unsetenv("IMAP_PORT")

	if err := os.WriteFile(".env", []byte("IMAP_PORT=1993\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IMAP.Port != 1993 {
		t.Errorf("IMAP.Port = %d, want 1993", cfg.IMAP.Port)
	}
}
