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

// Package notify delivers rendered notifications through one configured
// messaging channel with truncation and bounded retry.
package notify

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	// ErrWindowClosed means the provider refused freeform text because the
	// recipient's delivery window is closed. Only a template can get through.
	ErrWindowClosed = errors.New("delivery window closed")

	// ErrTemplateUnsupported is returned when a template send is requested
	// on a channel that has no template support.
	ErrTemplateUnsupported = errors.New("channel does not support templates")
)

// TruncationMarker ends every message cut to fit a channel limit.
const TruncationMarker = "\n\n... (message truncated)"

// Channel is a messaging provider. Send returns the provider's message id.
// Failures worth retrying are marked with Transient; anything else is
// treated as permanent.
type Channel interface {
	Name() string
	MaxLength() int
	Send(ctx context.Context, text string) (string, error)
}

// TemplateSender is implemented by channels that can send a pre-approved
// template with numbered variables.
type TemplateSender interface {
	SendTemplate(ctx context.Context, templateID string, vars []string) (string, error)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// isNetworkError reports connection, timeout and truncated-response
// failures. Cancellation of ctx is not one.
func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Truncate cuts text to at most limit characters, replacing the tail with
// TruncationMarker. Text within the limit is returned unchanged.
func Truncate(text string, limit int) string {
	return truncate(text, limit, runeWidth)
}

// UnitCounter is implemented by channels whose limit is not counted in
// Unicode code points.
type UnitCounter interface {
	UnitLen(r rune) int
}

func runeWidth(rune) int { return 1 }

func measure(s string, width func(rune) int) int {
	n := 0
	for _, r := range s {
		n += width(r)
	}
	return n
}

// truncate is Truncate with the length of each rune given by width.
func truncate(text string, limit int, width func(rune) int) string {
	if limit <= 0 || measure(text, width) <= limit {
		return text
	}
	marker := TruncationMarker
	keep := limit - measure(marker, width)
	if keep < 0 {
		keep, marker = limit, ""
	}
	n := 0
	for i, r := range text {
		if n+width(r) > keep {
			return text[:i] + marker
		}
		n += width(r)
	}
	return text
}
