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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramMaxLength keeps messages under the Bot API's 4096 limit, which is
// counted in UTF-16 code units.
const TelegramMaxLength = 4000

// TelegramConfig holds bot credentials. Endpoint and HTTPClient are
// optional.
type TelegramConfig struct {
	Token      string
	ChatID     int64
	Endpoint   string
	HTTPClient *http.Client
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram connects to the Bot API. The identity lookup doubles as a
// startup liveness check.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, withStatusErrors(cfg.HTTPClient))
	if err != nil {
		return nil, fmt.Errorf("telegram get bot identity: %w", err)
	}
	slog.Info("telegram bot connected", "username", bot.Self.UserName, "chat_id", cfg.ChatID)

	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string   { return "telegram" }
func (t *Telegram) MaxLength() int { return TelegramMaxLength }

// UnitLen counts r in UTF-16 code units; astral-plane emoji take two.
func (t *Telegram) UnitLen(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// Send posts text as a plain message; rendered notifications carry no
// markup.
func (t *Telegram) Send(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sent, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
	if err != nil {
		return "", classifyTelegram(err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// classifyTelegram marks server-side and network failures as transient.
func classifyTelegram(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return Transient(fmt.Errorf("telegram %d: %w", se.code, err))
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return Transient(fmt.Errorf("telegram %d: %w", apiErr.Code, err))
		}
		return fmt.Errorf("telegram %d: %w", apiErr.Code, err)
	}
	if isNetworkError(err) {
		return Transient(fmt.Errorf("telegram: %w", err))
	}
	return fmt.Errorf("telegram: %w", err)
}
