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

package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Confidence is the model's self-reported certainty for a document analysis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MessageType classifies an email body.
type MessageType string

const (
	MessagePurchaseOrder MessageType = "purchase_order"
	MessageQuotation     MessageType = "quotation"
	MessageInquiry       MessageType = "inquiry"
	MessageComplaint     MessageType = "complaint"
	MessageOther         MessageType = "other"
)

// Urgency of an email body as judged by the model.
type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

// Text is an optional free-text field in model output. Models are not
// consistent about quoting quantities and prices, so numbers and booleans
// are accepted verbatim; JSON null and the string "null" decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "null") {
			s = ""
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// String returns the field as a plain string.
func (t Text) String() string { return string(t) }

// Product is one line item of a purchase order.
type Product struct {
	Name      Text `json:"name"`
	Quantity  Text `json:"quantity"`
	UnitPrice Text `json:"unit_price"`
}

// DocumentAnalysis is the structured reading of one PDF attachment.
// SenderEmail, Filename and TokensUsed are provenance stamped by the
// analyzer; they are never requested from the model.
type DocumentAnalysis struct {
	IsPurchaseOrder bool       `json:"is_purchase_order"`
	ClientName      Text       `json:"client_name"`
	OrderNumber     Text       `json:"order_number"`
	OrderDate       Text       `json:"order_date"`
	Products        []Product  `json:"products"`
	TotalAmount     Text       `json:"total_amount"`
	SpecialNotes    Text       `json:"special_notes"`
	Confidence      Confidence `json:"confidence"`

	SenderEmail string `json:"sender_email"`
	Filename    string `json:"filename"`
	TokensUsed  int    `json:"tokens_used"`
}

// UnreadableDocument marks an attachment whose text extraction yielded
// nothing. It is a terminal outcome, not an error.
type UnreadableDocument struct {
	Filename    string `json:"filename"`
	SenderEmail string `json:"sender_email"`
}

// ProductMention is a product referenced in an email body.
type ProductMention struct {
	Name     Text `json:"name"`
	Quantity Text `json:"quantity"`
	Specs    Text `json:"specs"`
}

// EmailBodyAnalysis is the structured reading of an email body.
type EmailBodyAnalysis struct {
	MessageType       MessageType      `json:"message_type"`
	ProductsMentioned []ProductMention `json:"products_mentioned"`
	OrderNumber       Text             `json:"order_number"`
	DeliveryDate      Text             `json:"delivery_date"`
	Urgency           Urgency          `json:"urgency"`
	ImportantNotes    Text             `json:"important_notes"`
	RequiresResponse  bool             `json:"requires_response"`

	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	TokensUsed  int    `json:"tokens_used"`
}
