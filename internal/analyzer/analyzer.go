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

// Package analyzer turns document and email text into structured order data
// with a single LLM call per input.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/orderwatch/internal/llm"
	"github.com/bcem/orderwatch/internal/models"
)

const (
	// DefaultMaxChars is how much input text is sent to the model. Order
	// details cluster near the start of a document.
	DefaultMaxChars = 4000

	// DefaultMaxTokens bounds the model's response.
	DefaultMaxTokens = 1024
)

// ErrAnalysisFailed wraps every failure: call errors, missing JSON and
// schema violations. It is distinct from an unreadable document.
var ErrAnalysisFailed = errors.New("analysis failed")

// Config holds analyzer limits.
type Config struct {
	MaxChars  int
	MaxTokens int
}

// Analyzer extracts structured data with an LLM. It never retries.
type Analyzer struct {
	llm       llm.Completer
	maxChars  int
	maxTokens int
}

// New creates an analyzer. Zero limits take the defaults.
func New(c llm.Completer, cfg Config) *Analyzer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Analyzer{llm: c, maxChars: cfg.MaxChars, maxTokens: cfg.MaxTokens}
}

// AnalyzeDocument reads extracted PDF text. On success the result carries
// the sender, filename and token cost of the call.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, text, sender, filename string) (*models.DocumentAnalysis, error) {
	sample := truncate(text, a.maxChars)
	slog.Info("analyzing PDF", "filename", filename, "sender", sender, "chars", len([]rune(sample)))

	raw, tokens, err := a.complete(ctx, documentPrompt(sample, sender, filename), documentSchema)
	if err != nil {
		slog.Error("document analysis failed", "filename", filename, "error", err)
		return nil, err
	}

	var result models.DocumentAnalysis
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrAnalysisFailed, err)
	}
	result.Confidence = models.Confidence(strings.ToLower(strings.TrimSpace(string(result.Confidence))))
	result.SenderEmail = sender
	result.Filename = filename
	result.TokensUsed = tokens

	slog.Info("analysis complete", "filename", filename, "is_purchase_order", result.IsPurchaseOrder)
	return &result, nil
}

// AnalyzeEmailBody reads a cleaned email body.
func (a *Analyzer) AnalyzeEmailBody(ctx context.Context, body, sender, subject string) (*models.EmailBodyAnalysis, error) {
	sample := truncate(body, a.maxChars)
	slog.Info("analyzing email body", "sender", sender, "chars", len([]rune(sample)))

	raw, tokens, err := a.complete(ctx, emailPrompt(sample, sender, subject), emailSchema)
	if err != nil {
		slog.Error("email analysis failed", "sender", sender, "error", err)
		return nil, err
	}

	var result models.EmailBodyAnalysis
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrAnalysisFailed, err)
	}
	result.MessageType = models.MessageType(normalizeEnum(string(result.MessageType), string(models.MessageOther)))
	result.Urgency = models.Urgency(normalizeEnum(string(result.Urgency), string(models.UrgencyNormal)))
	result.SenderEmail = sender
	result.Subject = subject
	result.TokensUsed = tokens

	slog.Info("email analysis complete", "sender", sender, "message_type", result.MessageType)
	return &result, nil
}

// complete calls the model and returns the validated JSON object from its
// reply together with the token cost.
func (a *Analyzer) complete(ctx context.Context, prompt string, schema *jsonSchema) ([]byte, int, error) {
	c, err := a.llm.Complete(ctx, prompt, a.maxTokens)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: completion: %w", ErrAnalysisFailed, err)
	}

	slog.Info("LLM call completed",
		"input_tokens", c.InputTokens,
		"output_tokens", c.OutputTokens,
	)

	raw, err := extractJSON(c.Text)
	if err != nil {
		slog.Debug("unparseable model response", "response", c.Text)
		return nil, 0, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if err := schema.validate(raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return raw, c.TotalTokens(), nil
}

// extractJSON returns the text between the first '{' and the last '}',
// tolerating prose the model adds around the object.
func extractJSON(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end < start {
		return nil, errors.New("no JSON object in model response")
	}
	raw := []byte(s[start : end+1])
	if !json.Valid(raw) {
		return nil, errors.New("model response is not valid JSON")
	}
	return bytes.TrimSpace(raw), nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func normalizeEnum(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}
