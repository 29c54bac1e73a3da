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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	// TwilioMaxLength is the gateway's body limit.
	TwilioMaxLength = 1600

	// codeWindowClosed is Twilio's "outside the allowed window" error.
	codeWindowClosed = 63016
)

// TwilioConfig holds gateway credentials and the sender/recipient pair,
// e.g. "whatsapp:+14155238886".
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	HTTPClient *http.Client
}

// messageAPI is the part of the Twilio REST API used here.
type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
	ListMessage(params *openapi.ListMessageParams) ([]openapi.ApiV2010Message, error)
}

// Twilio sends WhatsApp or SMS messages through the Twilio REST API.
type Twilio struct {
	api  messageAPI
	from string
	to   string
}

// NewTwilio creates a gateway channel.
func NewTwilio(cfg TwilioConfig) *Twilio {
	hc := withStatusErrors(cfg.HTTPClient)
	if cfg.HTTPClient == nil {
		// Fetches must not follow redirects.
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	c := &client.Client{
		Credentials: client.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  hc,
	}
	c.SetAccountSid(cfg.AccountSID)

	rc := twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
	return &Twilio{api: rc.Api, from: cfg.From, to: cfg.To}
}

func (t *Twilio) Name() string   { return "twilio" }
func (t *Twilio) MaxLength() int { return TwilioMaxLength }

// Send delivers freeform text. A closed delivery window yields
// ErrWindowClosed.
func (t *Twilio) Send(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &openapi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(t.to)
	params.SetBody(text)
	return t.create(params)
}

// SendTemplate delivers an approved content template. Variables are sent
// as {"1": vars[0], "2": vars[1], ...}.
func (t *Twilio) SendTemplate(ctx context.Context, templateID string, vars []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &openapi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(t.to)
	params.SetContentSid(templateID)
	if len(vars) > 0 {
		numbered := make(map[string]string, len(vars))
		for i, v := range vars {
			numbered[strconv.Itoa(i+1)] = v
		}
		b, err := json.Marshal(numbered)
		if err != nil {
			return "", fmt.Errorf("marshal template variables: %w", err)
		}
		params.SetContentVariables(string(b))
	}
	return t.create(params)
}

func (t *Twilio) create(params *openapi.CreateMessageParams) (string, error) {
	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return "", classifyTwilio(err)
	}
	if msg != nil && msg.Sid != nil {
		return *msg.Sid, nil
	}
	return "", nil
}

// classifyTwilio maps REST errors: 63016 is ErrWindowClosed, 5xx and
// network failures are transient, the rest permanent.
func classifyTwilio(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return Transient(fmt.Errorf("twilio status %d: %w", se.code, err))
	}
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Code == codeWindowClosed {
			return fmt.Errorf("twilio %d: %w", restErr.Code, ErrWindowClosed)
		}
		if restErr.Status >= 500 {
			return Transient(fmt.Errorf("twilio status %d: %w", restErr.Status, err))
		}
		return fmt.Errorf("twilio %d: %w", restErr.Code, err)
	}
	if isNetworkError(err) {
		return Transient(fmt.Errorf("twilio: %w", err))
	}
	return fmt.Errorf("twilio: %w", err)
}

// Delivery is the gateway's record of one sent message.
type Delivery struct {
	SID          string
	Status       string
	DateSent     string
	Body         string
	ErrorCode    int
	ErrorMessage string
}

// History returns up to limit of the most recent messages sent to the
// configured recipient, newest first. Status and ErrorCode explain why a
// message was not delivered.
func (t *Twilio) History(ctx context.Context, limit int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &openapi.ListMessageParams{}
	params.SetTo(t.to)
	params.SetLimit(limit)

	msgs, err := t.api.ListMessage(params)
	if err != nil {
		return nil, classifyTwilio(err)
	}

	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		d := Delivery{
			SID:          deref(m.Sid),
			Status:       deref(m.Status),
			DateSent:     deref(m.DateSent),
			Body:         deref(m.Body),
			ErrorMessage: deref(m.ErrorMessage),
		}
		if m.ErrorCode != nil {
			d.ErrorCode = *m.ErrorCode
		}
		out = append(out, d)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
