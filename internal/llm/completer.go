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

// Package llm provides the text-completion capability used by the analyzer.
// Two backends are available: the Anthropic Messages API through the
// official SDK and the same models hosted on AWS Bedrock.
package llm

import "context"

// Completion is the result of a single model call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens is the token cost of the call.
func (c Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Completer sends a single-turn prompt to a model.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

// message and contentBlock form the Anthropic messages payload that Bedrock
// expects in its request body.
type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesResponse is the Bedrock response body.
type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	StopReason string `json:"stop_reason"`
}

func userPrompt(prompt string) []message {
	return []message{{
		Role:    "user",
		Content: []contentBlock{{Type: "text", Text: prompt}},
	}}
}

func (r *messagesResponse) completion() Completion {
	var text string
	for _, c := range r.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return Completion{
		Text:         text,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
}
