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

package mailbox

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/bcem/orderwatch/internal/models"
)

var (
	htmlMarker = regexp.MustCompile(`(?i)<(html|body)[\s>]`)
	scriptTags = regexp.MustCompile(`(?i)<(script|style)[^>]*>[\s\S]*?</(script|style)>`)
	blockTags  = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")
)

// Parse decodes a raw message. now stamps ReceivedAt when the Date header
// is missing or unparseable.
func Parse(raw []byte, now time.Time) (*models.InboundMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse MIME message: %w", err)
	}

	from := env.GetHeader("From")
	subject := env.GetHeader("Subject")
	rawDate := env.GetHeader("Date")

	msg := &models.InboundMessage{
		Identity:    strings.TrimSpace(env.GetHeader("Message-ID")),
		SenderEmail: senderAddress(env, from),
		Subject:     subject,
		RawDate:     rawDate,
		ReceivedAt:  now,
		BodyText:    cleanBody(env.Text, env.HTML),
	}
	if t, err := mail.ParseDate(rawDate); err == nil {
		msg.ReceivedAt = t
	}

	if msg.Identity == "" {
		msg.Identity = fallbackIdentity(from, subject, rawDate)
		msg.IdentityFallback = true
		slog.Warn("no Message-ID, using fallback identity",
			"identity", prefix(msg.Identity, 50),
		)
	}

	for _, part := range append(env.Attachments, env.Inlines...) {
		if !strings.HasSuffix(strings.ToLower(part.FileName), ".pdf") || len(part.Content) == 0 {
			continue
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename: part.FileName,
			Data:     part.Content,
		})
	}

	return msg, nil
}

// fallbackIdentity is deterministic for the same raw headers.
func fallbackIdentity(from, subject, date string) string {
	id := fmt.Sprintf("%s_%s_%s", from, subject, strings.TrimSpace(date))
	return norm.NFC.String(lineBreaks.Replace(id))
}

// senderAddress returns the lower-cased address of the From header.
func senderAddress(env *enmime.Envelope, from string) string {
	if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
		return strings.ToLower(strings.TrimSpace(addrs[0].Address))
	}
	if start, end := strings.Index(from, "<"), strings.LastIndex(from, ">"); start >= 0 && end > start {
		from = from[start+1 : end]
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// cleanBody prefers the plain-text part and falls back to HTML reduced to
// text. Lines are trimmed and blank lines dropped.
func cleanBody(text, htmlBody string) string {
	body := text
	if strings.TrimSpace(body) == "" {
		body = htmlBody
	}
	if htmlMarker.MatchString(body) || (body == htmlBody && body != "") {
		body = stripHTML(body)
	}

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func stripHTML(s string) string {
	s = scriptTags.ReplaceAllString(s, "")
	s = blockTags.ReplaceAllString(s, "\n")
	s = bluemonday.StripTagsPolicy().Sanitize(s)
	s = html.UnescapeString(s)
	return strings.ReplaceAll(s, "\u00a0", " ")
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
