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

package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bcem/orderwatch/internal/analyzer"
	"github.com/bcem/orderwatch/internal/models"
	"github.com/bcem/orderwatch/internal/notify"
	"github.com/bcem/orderwatch/internal/pdftext"
)

// pdf is a test attachment. Its content drives fakeExtractor:
// "text:<t>" extracts t, "notext" is unreadable, "broken" fails and
// "panic" panics.
type pdf struct {
	name    string
	content string
}

// rawMessage builds an RFC 5322 message. An empty id omits Message-ID.
func rawMessage(id, from, subject, body string, pdfs ...pdf) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n")
	if id != "" {
		fmt.Fprintf(&b, "Message-ID: <%s>\r\n", id)
	}
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(pdfs) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body + "\r\n")
		return []byte(b.String())
	}

	b.WriteString("Content-Type: multipart/mixed; boundary=\"XX\"\r\n\r\n")
	if body != "" {
		b.WriteString("--XX\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body + "\r\n")
	}
	for _, p := range pdfs {
		b.WriteString("--XX\r\n")
		fmt.Fprintf(&b, "Content-Type: application/pdf; name=%q\r\n", p.name)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", p.name)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(p.content)) + "\r\n")
	}
	b.WriteString("--XX--\r\n")
	return []byte(b.String())
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) Extract(data []byte, filename string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filename)
	f.mu.Unlock()

	s := string(data)
	switch {
	case strings.HasPrefix(s, "text:"):
		return strings.TrimPrefix(s, "text:"), nil
	case s == "notext":
		return "", pdftext.ErrNoText
	case s == "panic":
		panic("corrupt xref table")
	default:
		return "", errors.New("malformed PDF")
	}
}

// fakeAnalyzer returns docs[text] for a document, a generic purchase order
// when absent, and fails for the text "fail".
type fakeAnalyzer struct {
	mu        sync.Mutex
	docs      map[string]*models.DocumentAnalysis
	body      *models.EmailBodyAnalysis
	bodyErr   error
	docCalls  []string
	bodyCalls int
}

func (f *fakeAnalyzer) AnalyzeDocument(ctx context.Context, text, sender, filename string) (*models.DocumentAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCalls = append(f.docCalls, filename)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: completion: %w", analyzer.ErrAnalysisFailed, err)
	}
	if text == "fail" {
		return nil, fmt.Errorf("%w: bad json", analyzer.ErrAnalysisFailed)
	}
	d, ok := f.docs[text]
	if !ok {
		d = &models.DocumentAnalysis{IsPurchaseOrder: true, ClientName: "Generic", Confidence: models.ConfidenceMedium}
	}
	out := *d
	out.SenderEmail = sender
	out.Filename = filename
	return &out, nil
}

func (f *fakeAnalyzer) AnalyzeEmailBody(ctx context.Context, body, sender, subject string) (*models.EmailBodyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodyCalls++
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: completion: %w", analyzer.ErrAnalysisFailed, err)
	}
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	if f.body != nil {
		out := *f.body
		out.SenderEmail = sender
		out.Subject = subject
		return &out, nil
	}
	return &models.EmailBodyAnalysis{MessageType: models.MessageInquiry, SenderEmail: sender, Subject: subject}, nil
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docCalls) + f.bodyCalls
}

type dispatch struct {
	kind   string
	text   string
	notice notify.OrderNotice
	// committed records whether the ledger already held the identity when
	// the dispatch happened.
	committed bool
}

// fakeNotifier records dispatches; errs maps "send" or "orders" to a
// failure. afterSend runs once a dispatch has been recorded.
type fakeNotifier struct {
	mu        sync.Mutex
	errs      map[string]error
	ledger    *fakeLedger
	id        string
	sent      []dispatch
	afterSend func()
}

func (f *fakeNotifier) record(kind, text string, n notify.OrderNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.afterSend != nil {
		defer f.afterSend()
	}
	d := dispatch{kind: kind, text: text, notice: n}
	if f.ledger != nil {
		d.committed = f.ledger.IsProcessed(f.id)
	}
	f.sent = append(f.sent, d)
	return f.errs[kind]
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	return f.record("send", text, notify.OrderNotice{})
}

func (f *fakeNotifier) SendOrders(_ context.Context, text string, n notify.OrderNotice) error {
	return f.record("orders", text, n)
}

func (f *fakeNotifier) HeartbeatDue(time.Duration) bool { return true }

// fakeLedger fails a write whose ctx is already done, as a networked
// store would.
type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	adds []string
}

func newFakeLedger(ids ...string) *fakeLedger {
	l := &fakeLedger{seen: map[string]bool{}}
	for _, id := range ids {
		l.seen[id] = true
	}
	return l
}

func (l *fakeLedger) IsProcessed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[id]
}

func (l *fakeLedger) MarkProcessed(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	l.seen[id] = true
	l.adds = append(l.adds, id)
	return nil
}

// fakeMailbox serves raw messages per sender.
type fakeMailbox struct {
	mu        sync.Mutex
	bySender  map[string][][]byte
	searchErr map[string]error
	searches  []string
	closed    int
	uids      map[uint32][]byte
}

func newFakeMailbox(bySender map[string][][]byte) *fakeMailbox {
	return &fakeMailbox{bySender: bySender, searchErr: map[string]error{}, uids: map[uint32][]byte{}}
}

func (m *fakeMailbox) Search(_ context.Context, from string, _ time.Time) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, from)
	if err := m.searchErr[from]; err != nil {
		return nil, err
	}
	var uids []uint32
	for _, raw := range m.bySender[from] {
		uid := uint32(len(m.uids) + 1)
		m.uids[uid] = raw
		uids = append(uids, uid)
	}
	return uids, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.uids[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d not found", uid)
	}
	return raw, nil
}

func (m *fakeMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

type harness struct {
	cycle    *Cycle
	mailbox  *fakeMailbox
	extract  *fakeExtractor
	analyze  *fakeAnalyzer
	notifier *fakeNotifier
	ledger   *fakeLedger
}

func newHarness(senders ...string) *harness {
	h := &harness{
		mailbox:  newFakeMailbox(map[string][][]byte{}),
		extract:  &fakeExtractor{},
		analyze:  &fakeAnalyzer{},
		ledger:   newFakeLedger(),
		notifier: &fakeNotifier{errs: map[string]error{}},
	}
	h.notifier.ledger = h.ledger
	h.cycle = NewCycle(CycleConfig{
		Dial:      func(context.Context) (Mailbox, error) { return h.mailbox, nil },
		Extractor: h.extract,
		Analyzer:  h.analyze,
		Notifier:  h.notifier,
		Ledger:    h.ledger,
		Senders:   senders,
		DaysBack:  1,
	})
	return h
}
