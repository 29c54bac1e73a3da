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

package notify

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPTimeout bounds one provider request.
const defaultHTTPTimeout = 30 * time.Second

// statusError is a 5xx answer from the provider or a proxy in front of it.
// The body is not decoded: gateway error pages are rarely JSON.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server error: HTTP %d %s", e.code, http.StatusText(e.code))
}

// statusTransport turns 5xx responses into a *statusError before the
// client library tries to decode them.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
	return resp, nil
}

// withStatusErrors returns a copy of c whose transport reports 5xx answers
// as errors. A nil c gets the default timeout.
func withStatusErrors(c *http.Client) *http.Client {
	var out http.Client
	if c != nil {
		out = *c
	} else {
		out.Timeout = defaultHTTPTimeout
	}
	out.Transport = &statusTransport{base: out.Transport}
	return &out
}
