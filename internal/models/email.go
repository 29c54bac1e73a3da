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

// Package models defines the data structures shared across the monitor.
package models

import "time"

// Attachment is a PDF file attached to an inbound message.
type Attachment struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// InboundMessage is one fetched mail item, reduced to what the scan cycle
// needs. Only Identity is ever persisted (into the ledger).
type InboundMessage struct {
	Identity string `json:"identity"`

	// IdentityFallback is true when no Message-ID header was present and
	// Identity was synthesized from From, Subject and Date.
	IdentityFallback bool `json:"identity_fallback,omitempty"`

	SenderEmail string       `json:"sender_email"`
	Subject     string       `json:"subject"`
	RawDate     string       `json:"raw_date"`
	ReceivedAt  time.Time    `json:"received_at"`
	BodyText    string       `json:"body_text"`
	Attachments []Attachment `json:"attachments"`
}

// HasBody reports whether the message carries any usable body text.
func (m *InboundMessage) HasBody() bool {
	return m.BodyText != ""
}
