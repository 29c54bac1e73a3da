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

// Package render formats analysis results as notification text. Every
// function is pure: no I/O and no knowledge of the delivery channel.
package render

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bcem/orderwatch/internal/models"
)

const (
	maxSubject = 100
	timeLayout = "2006-01-02 15:04"
)

var (
	majorDivider = strings.Repeat("=", 40)
	minorDivider = strings.Repeat("-", 40)
)

// OrderBatch is the readable group of one inbound message.
type OrderBatch struct {
	Sender    string
	Subject   string
	At        time.Time
	Documents []*models.DocumentAnalysis
	Context   *models.EmailBodyAnalysis
}

// UnreadableBatch is the unreadable group of one inbound message.
type UnreadableBatch struct {
	Sender  string
	Subject string
	At      time.Time
	Files   []models.UnreadableDocument
	Context *models.EmailBodyAnalysis
}

// CustomerEmail is a message without attachments whose body was analyzed.
type CustomerEmail struct {
	Sender   string
	Subject  string
	At       time.Time
	Analysis *models.EmailBodyAnalysis
}

// Document renders a single document analysis.
func Document(d *models.DocumentAnalysis) string {
	var b strings.Builder
	client := orDefault(d.ClientName.String(), "Unknown")

	if !d.IsPurchaseOrder {
		b.WriteString("⚠️ DOCUMENT RECEIVED (not a purchase order)\n\n")
		fmt.Fprintf(&b, "👤 Client: %s\n", client)
		fmt.Fprintf(&b, "📧 From: %s\n", d.SenderEmail)
		if d.Filename != "" {
			fmt.Fprintf(&b, "📎 File: %s\n", d.Filename)
		}
		fmt.Fprintf(&b, "ℹ️ %s", orDefault(d.SpecialNotes.String(), "Document not identified as a purchase order"))
		return b.String()
	}

	b.WriteString("🔔 NEW PURCHASE ORDER\n\n")
	fmt.Fprintf(&b, "👤 Client: %s\n", client)
	fmt.Fprintf(&b, "📧 From: %s\n", d.SenderEmail)
	if d.OrderDate != "" {
		fmt.Fprintf(&b, "📅 Date: %s\n", d.OrderDate)
	}
	if d.OrderNumber != "" {
		fmt.Fprintf(&b, "📄 Order: %s\n", d.OrderNumber)
	}

	if len(d.Products) > 0 {
		b.WriteString("\n📦 Products:\n")
		for _, p := range d.Products {
			fmt.Fprintf(&b, "- %s - %s",
				orDefault(p.Name.String(), "Unnamed"),
				orDefault(p.Quantity.String(), "N/A"))
			if p.UnitPrice != "" {
				fmt.Fprintf(&b, " @ %s", p.UnitPrice)
			}
			b.WriteByte('\n')
		}
	}

	if d.TotalAmount != "" {
		fmt.Fprintf(&b, "💰 Total: %s\n", d.TotalAmount)
	}
	if d.SpecialNotes != "" {
		fmt.Fprintf(&b, "📝 Notes: %s\n", d.SpecialNotes)
	}

	b.WriteByte('\n')
	fmt.Fprintf(&b, "📎 File: %s", d.Filename)
	if d.Confidence != "" {
		fmt.Fprintf(&b, "\n%s Confidence: %s", confidenceMarker(d.Confidence), d.Confidence)
	}
	return b.String()
}

// Orders renders every readable document of one message under a single
// header.
func Orders(batch OrderBatch) string {
	var b strings.Builder
	n := len(batch.Documents)

	if n == 1 {
		b.WriteString("🔔 NEW PURCHASE ORDER\n\n")
	} else {
		b.WriteString("🔔 NEW PURCHASE ORDERS\n\n")
	}
	fmt.Fprintf(&b, "📧 From: %s\n", batch.Sender)
	fmt.Fprintf(&b, "📅 %s\n", batch.At.Format(timeLayout))
	fmt.Fprintf(&b, "📎 %d PDF attachment(s)\n", n)
	b.WriteString(majorDivider)
	b.WriteByte('\n')

	for i, d := range batch.Documents {
		if i > 0 {
			b.WriteString("\n" + minorDivider + "\n")
		}
		b.WriteByte('\n')
		if n > 1 {
			fmt.Fprintf(&b, "📄 PDF #%d: %s\n\n", i+1, d.Filename)
		}
		b.WriteString(Document(d))
		b.WriteByte('\n')
	}

	if batch.Context != nil {
		writeContext(&b, batch.Context)
	}
	writeSubject(&b, batch.Subject)
	return b.String()
}

// Unreadable renders the attachments whose text could not be extracted.
// The email context, when present, is usually the only useful content.
func Unreadable(batch UnreadableBatch) string {
	var b strings.Builder
	n := len(batch.Files)

	if n == 1 {
		b.WriteString("⚠️ NEW PURCHASE ORDER (UNREADABLE PDF)\n\n")
	} else {
		b.WriteString("⚠️ NEW PURCHASE ORDER (UNREADABLE PDFS)\n\n")
	}
	fmt.Fprintf(&b, "📧 From: %s\n", batch.Sender)
	fmt.Fprintf(&b, "📅 %s\n", batch.At.Format(timeLayout))
	b.WriteString(majorDivider)
	b.WriteString("\n\n")

	b.WriteString("⚠️ Could not extract text from the PDF\n")
	b.WriteString("It is probably a scanned image.\n\n")
	for i, f := range batch.Files {
		if n == 1 {
			fmt.Fprintf(&b, "📄 File: %s\n", f.Filename)
		} else {
			fmt.Fprintf(&b, "📄 PDF #%d: %s\n", i+1, f.Filename)
		}
	}

	if batch.Context != nil {
		writeContext(&b, batch.Context)
		b.WriteString("\n💡 The PDF could not be read, review it manually.\n")
	} else {
		b.WriteString("\n💡 Review the email manually to see the PDF contents.\n")
	}
	writeSubject(&b, batch.Subject)
	return b.String()
}

// Email renders a body-only message.
func Email(m CustomerEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s NEW CUSTOMER EMAIL\n\n", messageIcon(m.Analysis.MessageType))
	fmt.Fprintf(&b, "📧 From: %s\n", m.Sender)
	fmt.Fprintf(&b, "📅 %s\n", m.At.Format(timeLayout))
	b.WriteString(majorDivider)
	b.WriteString("\n\n📧 EMAIL ANALYSIS:\n")
	b.WriteString(EmailAnalysis(m.Analysis))
	b.WriteByte('\n')
	writeSubject(&b, m.Subject)
	return b.String()
}

// EmailAnalysis renders the fields of a body analysis. Empty fields are
// left out.
func EmailAnalysis(e *models.EmailBodyAnalysis) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s Type: %s", messageIcon(e.MessageType), typeLabel(e.MessageType)))

	if len(e.ProductsMentioned) > 0 {
		lines = append(lines, "📦 Products requested:")
		for _, p := range e.ProductsMentioned {
			item := "  • " + orDefault(p.Name.String(), "Unnamed")
			if p.Quantity != "" {
				item += " - " + p.Quantity.String()
			}
			if p.Specs != "" {
				item += "\n    " + p.Specs.String()
			}
			lines = append(lines, item)
		}
	}
	if e.OrderNumber != "" {
		lines = append(lines, "📄 PO#: "+e.OrderNumber.String())
	}
	if e.DeliveryDate != "" {
		lines = append(lines, "📅 Delivery: "+e.DeliveryDate.String())
	}
	switch e.Urgency {
	case models.UrgencyUrgent:
		lines = append(lines, "🔴 URGENT")
	case models.UrgencyLow:
		lines = append(lines, "🟢 Low priority")
	}
	if e.ImportantNotes != "" {
		lines = append(lines, "💡 Notes: "+e.ImportantNotes.String())
	}
	if e.RequiresResponse {
		lines = append(lines, "⚡ Requires response")
	}
	return strings.Join(lines, "\n")
}

// Startup is sent once when the monitor starts.
func Startup(mailbox string, clients int, interval time.Duration) string {
	return fmt.Sprintf("🚀 SYSTEM STARTED\n\n"+
		"The purchase order monitoring agent is running.\n\n"+
		"⏰ Automatic check every %d minutes\n"+
		"👥 Monitoring %d clients\n"+
		"📧 Mailbox: %s\n\n"+
		"You will be notified when new purchase orders are detected.",
		int(interval.Minutes()), clients, mailbox)
}

// Heartbeat keeps the delivery window of the messaging channel open.
func Heartbeat() string {
	return "💚 SYSTEM ACTIVE\n\n" +
		"The purchase order monitoring system is working normally.\n\n" +
		"✅ Messaging connection active\n" +
		"⏰ Monitoring email continuously\n\n" +
		"(This is an automatic message to keep the connection open)"
}

func writeContext(b *strings.Builder, e *models.EmailBodyAnalysis) {
	b.WriteString("\n" + majorDivider + "\n")
	b.WriteString("📧 EMAIL CONTEXT:\n")
	b.WriteString(EmailAnalysis(e))
	b.WriteByte('\n')
}

func writeSubject(b *strings.Builder, subject string) {
	if subject == "" {
		return
	}
	r := []rune(subject)
	if len(r) > maxSubject {
		subject = string(r[:maxSubject])
	}
	fmt.Fprintf(b, "\n📧 Subject: %s", subject)
}

func confidenceMarker(c models.Confidence) string {
	switch c {
	case models.ConfidenceHigh:
		return "✓"
	case models.ConfidenceMedium:
		return "!"
	default:
		return "?"
	}
}

func messageIcon(t models.MessageType) string {
	switch t {
	case models.MessagePurchaseOrder:
		return "📝"
	case models.MessageQuotation:
		return "💰"
	case models.MessageInquiry:
		return "❓"
	case models.MessageComplaint:
		return "⚠️"
	default:
		return "📧"
	}
}

func typeLabel(t models.MessageType) string {
	if t == "" {
		t = models.MessageOther
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
