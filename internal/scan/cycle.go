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

// Package scan runs mailbox scan cycles: search each monitored sender, run
// every new message through extraction, analysis and notification, and
// commit it to the dedup ledger when that is warranted.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/orderwatch/internal/mailbox"
	"github.com/bcem/orderwatch/internal/models"
	"github.com/bcem/orderwatch/internal/notify"
	"github.com/bcem/orderwatch/internal/pdftext"
	"github.com/bcem/orderwatch/internal/render"
)

// Mailbox is an open mail session.
type Mailbox interface {
	Search(ctx context.Context, from string, since time.Time) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	Close() error
}

// DialFunc opens a mail session for one cycle.
type DialFunc func(ctx context.Context) (Mailbox, error)

// Extractor turns attachment bytes into text. It returns pdftext.ErrNoText
// for a document without text.
type Extractor interface {
	Extract(data []byte, filename string) (string, error)
}

// Analyzer reads document and body text.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, text, sender, filename string) (*models.DocumentAnalysis, error)
	AnalyzeEmailBody(ctx context.Context, body, sender, subject string) (*models.EmailBodyAnalysis, error)
}

// Notifier delivers rendered notifications. A nil error means delivered.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendOrders(ctx context.Context, text string, n notify.OrderNotice) error
}

// Ledger remembers committed message identities.
type Ledger interface {
	IsProcessed(id string) bool
	MarkProcessed(ctx context.Context, id string) error
}

// Outcome is the terminal state of one message in a cycle.
type Outcome int

const (
	// OutcomeSkipped means the identity was already in the ledger.
	OutcomeSkipped Outcome = iota
	// OutcomeCommitted means the identity was added to the ledger.
	OutcomeCommitted
	// OutcomeDeferred means nothing was committed; the next cycle retries.
	OutcomeDeferred
	// OutcomeError means the message could not be handled at all.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCommitted:
		return "committed"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "error"
	}
}

// Result summarises a completed cycle.
type Result struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"started_at"`
	SenderResults  []SenderResult `json:"senders"`
	TotalFound     int            `json:"total_found"`
	TotalSkipped   int            `json:"total_skipped"`
	TotalCommitted int            `json:"total_committed"`
	TotalDeferred  int            `json:"total_deferred"`
	TotalErrors    int            `json:"total_errors"`
	Elapsed        time.Duration  `json:"elapsed_ns"`
	Error          string         `json:"error,omitempty"`
}

// SenderResult tracks per-sender progress.
type SenderResult struct {
	Sender    string `json:"sender"`
	Found     int    `json:"found"`
	Skipped   int    `json:"skipped"`
	Committed int    `json:"committed"`
	Deferred  int    `json:"deferred"`
	Errors    int    `json:"errors"`
}

func (sr *SenderResult) count(o Outcome) {
	switch o {
	case OutcomeSkipped:
		sr.Skipped++
	case OutcomeCommitted:
		sr.Committed++
	case OutcomeDeferred:
		sr.Deferred++
	default:
		sr.Errors++
	}
}

// Cycle performs one pass over the monitored senders.
type Cycle struct {
	dial      DialFunc
	extractor Extractor
	analyzer  Analyzer
	notifier  Notifier
	ledger    Ledger
	senders   []string
	daysBack  int
	now       func() time.Time
}

// CycleConfig holds dependencies for the cycle.
type CycleConfig struct {
	Dial      DialFunc
	Extractor Extractor
	Analyzer  Analyzer
	Notifier  Notifier
	Ledger    Ledger
	Senders   []string
	DaysBack  int
}

// NewCycle creates a scan cycle.
func NewCycle(cfg CycleConfig) *Cycle {
	days := cfg.DaysBack
	if days <= 0 {
		days = 1
	}
	return &Cycle{
		dial:      cfg.Dial,
		extractor: cfg.Extractor,
		analyzer:  cfg.Analyzer,
		notifier:  cfg.Notifier,
		ledger:    cfg.Ledger,
		senders:   cfg.Senders,
		daysBack:  days,
		now:       time.Now,
	}
}

// Run scans every sender in configured order. A connection failure ends
// the cycle early; it is reported in the result, never returned.
func (c *Cycle) Run(ctx context.Context) *Result {
	start := c.now()
	result := &Result{ID: uuid.NewString(), StartedAt: start}
	log := slog.With("cycle_id", result.ID)

	log.Info("scan cycle starting", "senders", len(c.senders))

	mb, err := c.dial(ctx)
	if err != nil {
		log.Error("cannot check email, connection failed", "error", err)
		result.Error = err.Error()
		result.TotalErrors++
		result.Elapsed = time.Since(start)
		return result
	}
	defer func() {
		if err := mb.Close(); err != nil {
			log.Warn("mailbox logout failed", "error", err)
		}
	}()

	since := start.AddDate(0, 0, -c.daysBack)
	for _, sender := range c.senders {
		if ctx.Err() != nil {
			log.Info("scan cycle interrupted")
			break
		}
		sr := c.scanSender(ctx, mb, sender, since)

		result.SenderResults = append(result.SenderResults, sr)
		result.TotalFound += sr.Found
		result.TotalSkipped += sr.Skipped
		result.TotalCommitted += sr.Committed
		result.TotalDeferred += sr.Deferred
		result.TotalErrors += sr.Errors
	}

	result.Elapsed = time.Since(start)
	log.Info("scan cycle complete",
		"found", result.TotalFound,
		"skipped", result.TotalSkipped,
		"committed", result.TotalCommitted,
		"deferred", result.TotalDeferred,
		"errors", result.TotalErrors,
		"elapsed", result.Elapsed,
	)
	return result
}

func (c *Cycle) scanSender(ctx context.Context, mb Mailbox, sender string, since time.Time) SenderResult {
	sr := SenderResult{Sender: sender}
	slog.Info("checking emails", "sender", sender, "since", since.Format("02-Jan-2006"))

	uids, err := mb.Search(ctx, sender, since)
	if err != nil {
		slog.Warn("search failed", "sender", sender, "error", err)
		sr.Errors++
		return sr
	}
	sr.Found = len(uids)
	slog.Info("found emails", "sender", sender, "count", len(uids))

	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		raw, err := mb.Fetch(ctx, uid)
		if err != nil {
			slog.Error("fetch failed", "sender", sender, "uid", uid, "error", err)
			sr.Errors++
			continue
		}
		sr.count(c.Process(ctx, raw))
	}
	return sr
}

// Process runs one raw message through the pipeline. It never panics; a
// panic leaves the message uncommitted.
func (c *Cycle) Process(ctx context.Context, raw []byte) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing message", "panic", fmt.Sprint(r))
			outcome = OutcomeError
		}
	}()

	msg, err := mailbox.Parse(raw, c.now())
	if err != nil {
		slog.Error("cannot parse message", "error", err)
		return OutcomeError
	}
	return c.handle(ctx, msg)
}

func (c *Cycle) handle(ctx context.Context, msg *models.InboundMessage) Outcome {
	if c.ledger.IsProcessed(msg.Identity) {
		slog.Info("email already processed, skipping", "identity", msg.Identity)
		return OutcomeSkipped
	}

	slog.Info("processing new email",
		"identity", msg.Identity,
		"sender", msg.SenderEmail,
		"subject", msg.Subject,
		"attachments", len(msg.Attachments),
		"body_chars", len([]rune(msg.BodyText)),
	)

	if len(msg.Attachments) == 0 {
		return c.handleBodyOnly(ctx, msg)
	}
	return c.handleAttachments(ctx, msg)
}

func (c *Cycle) handleBodyOnly(ctx context.Context, msg *models.InboundMessage) Outcome {
	if !msg.HasBody() {
		slog.Info("no attachments and no body, nothing to analyze", "identity", msg.Identity)
		return c.commit(ctx, msg)
	}

	analysis, err := c.analyzer.AnalyzeEmailBody(ctx, msg.BodyText, msg.SenderEmail, msg.Subject)
	if err != nil {
		slog.Warn("body analysis failed, will retry next cycle", "identity", msg.Identity, "error", err)
		return OutcomeDeferred
	}

	text := render.Email(render.CustomerEmail{
		Sender:   msg.SenderEmail,
		Subject:  msg.Subject,
		At:       msg.ReceivedAt,
		Analysis: analysis,
	})
	if err := c.notifier.Send(ctx, text); err != nil {
		slog.Warn("email notification not sent, will retry next cycle", "identity", msg.Identity, "error", err)
		return OutcomeDeferred
	}
	return c.commit(ctx, msg)
}

func (c *Cycle) handleAttachments(ctx context.Context, msg *models.InboundMessage) Outcome {
	var (
		readable   []*models.DocumentAnalysis
		unreadable []models.UnreadableDocument
	)
	for _, att := range msg.Attachments {
		doc, unread := c.processAttachment(ctx, msg, att)
		switch {
		case doc != nil:
			readable = append(readable, doc)
		case unread != nil:
			unreadable = append(unreadable, *unread)
		}
	}

	// Cancelled analyses look like failures; committing now would drop
	// the message without a notification.
	if err := ctx.Err(); err != nil {
		slog.Warn("cycle interrupted, will retry next cycle", "identity", msg.Identity, "error", err)
		return OutcomeDeferred
	}

	slog.Info("attachments classified",
		"identity", msg.Identity,
		"readable", len(readable),
		"unreadable", len(unreadable),
		"failed", len(msg.Attachments)-len(readable)-len(unreadable),
	)

	if len(readable) == 0 && len(unreadable) == 0 {
		slog.Info("no valid attachment results, marking processed", "identity", msg.Identity)
		return c.commit(ctx, msg)
	}

	var bodyContext *models.EmailBodyAnalysis
	if msg.HasBody() {
		a, err := c.analyzer.AnalyzeEmailBody(ctx, msg.BodyText, msg.SenderEmail, msg.Subject)
		if err != nil {
			slog.Warn("body analysis failed, continuing without email context", "identity", msg.Identity, "error", err)
		} else {
			bodyContext = a
		}
	}

	sent := false
	if len(readable) > 0 {
		text := render.Orders(render.OrderBatch{
			Sender:    msg.SenderEmail,
			Subject:   msg.Subject,
			At:        msg.ReceivedAt,
			Documents: readable,
			Context:   bodyContext,
		})
		notice := notify.OrderNotice{Client: clientName(readable, msg.SenderEmail), Count: len(readable)}
		if err := c.notifier.SendOrders(ctx, text, notice); err != nil {
			slog.Warn("order notification not sent", "identity", msg.Identity, "error", err)
		} else {
			sent = true
		}
	}
	if len(unreadable) > 0 {
		text := render.Unreadable(render.UnreadableBatch{
			Sender:  msg.SenderEmail,
			Subject: msg.Subject,
			At:      msg.ReceivedAt,
			Files:   unreadable,
			Context: bodyContext,
		})
		if err := c.notifier.Send(ctx, text); err != nil {
			slog.Warn("unreadable notification not sent", "identity", msg.Identity, "error", err)
		} else {
			sent = true
		}
	}

	if !sent {
		slog.Warn("no notification delivered, will retry next cycle", "identity", msg.Identity)
		return OutcomeDeferred
	}
	return c.commit(ctx, msg)
}

// processAttachment returns exactly one of a document analysis or an
// unreadable marker, or neither when the attachment failed.
func (c *Cycle) processAttachment(ctx context.Context, msg *models.InboundMessage, att models.Attachment) (doc *models.DocumentAnalysis, unread *models.UnreadableDocument) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing attachment", "filename", att.Filename, "panic", fmt.Sprint(r))
			doc, unread = nil, nil
		}
	}()

	text, err := c.extractor.Extract(att.Data, att.Filename)
	if errors.Is(err, pdftext.ErrNoText) {
		slog.Warn("could not extract text from PDF, probably a scanned image", "filename", att.Filename)
		return nil, &models.UnreadableDocument{Filename: att.Filename, SenderEmail: msg.SenderEmail}
	}
	if err != nil {
		slog.Error("PDF extraction failed", "filename", att.Filename, "error", err)
		return nil, nil
	}

	analysis, err := c.analyzer.AnalyzeDocument(ctx, text, msg.SenderEmail, att.Filename)
	if err != nil {
		slog.Error("PDF analysis failed", "filename", att.Filename, "error", err)
		return nil, nil
	}
	return analysis, nil
}

// commit adds the identity to the ledger. A failed durable append is only
// logged: the in-memory mirror still holds the id until restart. The write
// ignores cancellation so a delivered notification is always recorded.
func (c *Cycle) commit(ctx context.Context, msg *models.InboundMessage) Outcome {
	if err := c.ledger.MarkProcessed(context.WithoutCancel(ctx), msg.Identity); err != nil {
		slog.Error("failed to persist processed email", "identity", msg.Identity, "error", err)
	} else {
		slog.Info("email marked processed", "identity", msg.Identity)
	}
	return OutcomeCommitted
}

// clientName picks the first client name reported by a purchase-order
// analysis, falling back to the sender.
func clientName(docs []*models.DocumentAnalysis, sender string) string {
	for _, d := range docs {
		if d.IsPurchaseOrder && d.ClientName != "" {
			return d.ClientName.String()
		}
	}
	return sender
}
