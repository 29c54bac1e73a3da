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

package analyzer

import "fmt"

const documentTemplate = `Analyze the following document received by email and extract purchase order information.

Sender: %s
Filename: %s

Document content:
%s

Extract the following information in JSON format:
{
    "is_purchase_order": true/false,
    "client_name": "client company name",
    "order_number": "order number if present",
    "order_date": "order date",
    "products": [
        {
            "name": "product name",
            "quantity": "quantity",
            "unit_price": "unit price if present"
        }
    ],
    "total_amount": "total amount if present",
    "special_notes": "any special notes or instructions",
    "confidence": "high/medium/low"
}

If this is NOT a purchase order, set is_purchase_order to false and briefly explain what it is in special_notes.

Respond with ONLY valid JSON, no additional text.`

const emailTemplate = `Analyze the following customer email received by a sales mailbox.

Sender: %s
Subject: %s

Email content:
%s

Extract the following information in JSON format:
{
    "message_type": "purchase_order/quotation/inquiry/complaint/other",
    "products_mentioned": [
        {
            "name": "product name",
            "quantity": "quantity with units if present",
            "specs": "specifications if present"
        }
    ],
    "order_number": "order number if present",
    "delivery_date": "requested delivery date if present",
    "urgency": "urgent/normal/low",
    "important_notes": "anything the sales team must know",
    "requires_response": true/false
}

Use null for any field that is not present.

Respond with ONLY valid JSON, no additional text.`

func documentPrompt(text, sender, filename string) string {
	return fmt.Sprintf(documentTemplate, sender, filename, text)
}

func emailPrompt(body, sender, subject string) string {
	return fmt.Sprintf(emailTemplate, sender, subject, body)
}
