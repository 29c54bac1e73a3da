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

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jsonSchema is a compiled schema for one kind of model response.
type jsonSchema struct {
	name   string
	schema *jsonschema.Schema
}

// textField accepts the loose shapes models use for optional values.
var textField = map[string]any{"type": []any{"string", "number", "boolean", "null"}}

var documentSchema = mustCompile("document.json", map[string]any{
	"type":     "object",
	"required": []any{"is_purchase_order"},
	"properties": map[string]any{
		"is_purchase_order": map[string]any{"type": "boolean"},
		"client_name":       textField,
		"order_number":      textField,
		"order_date":        textField,
		"total_amount":      textField,
		"special_notes":     textField,
		"confidence":        map[string]any{"type": []any{"string", "null"}},
		"products": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       textField,
					"quantity":   textField,
					"unit_price": textField,
				},
			},
		},
	},
})

var emailSchema = mustCompile("email.json", map[string]any{
	"type":     "object",
	"required": []any{"message_type"},
	"properties": map[string]any{
		"message_type":      map[string]any{"type": []any{"string", "null"}},
		"order_number":      textField,
		"delivery_date":     textField,
		"important_notes":   textField,
		"urgency":           map[string]any{"type": []any{"string", "null"}},
		"requires_response": map[string]any{"type": []any{"boolean", "null"}},
		"products_mentioned": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     textField,
					"quantity": textField,
					"specs":    textField,
				},
			},
		},
	},
})

func mustCompile(name string, schemaMap map[string]any) *jsonSchema {
	s, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

func compileSchema(name string, schemaMap map[string]any) (*jsonSchema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &jsonSchema{name: name, schema: schema}, nil
}

// validate checks data against the schema.
func (s *jsonSchema) validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match %s: %w", s.name, err)
	}
	return nil
}
