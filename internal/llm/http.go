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

package llm

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// loggingTransport tags every outgoing model request with a request ID and
// logs its outcome.
type loggingTransport struct {
	base http.RoundTripper
}

// withRequestLogging returns a copy of c whose transport logs each round trip.
// A nil c yields a client with a 60 second timeout.
func withRequestLogging(c *http.Client) *http.Client {
	out := &http.Client{Timeout: 60 * time.Second}
	if c != nil {
		cp := *c
		out = &cp
	}
	base := out.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out.Transport = &loggingTransport{base: base}
	return out
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqID := uuid.New().String()
	start := time.Now()

	slog.Debug("llm.http.request", "req_id", reqID, "url", req.URL.String(), "content_length", req.ContentLength)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		slog.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	slog.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", resp.ContentLength,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
