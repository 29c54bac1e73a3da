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

package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig holds app registration details for Microsoft 365 mailboxes.
type OAuthConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenSource returns a cached client-credentials token source for the
// tenant's v2 token endpoint.
func TokenSource(ctx context.Context, cfg OAuthConfig) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{cfg.Scope},
	}
	return cc.TokenSource(ctx)
}

// xoauth2 implements the XOAUTH2 SASL mechanism used by Gmail and
// Exchange Online.
type xoauth2 struct {
	user  string
	token string
}

func newXOAuth2(user, token string) sasl.Client {
	return &xoauth2{user: user, token: token}
}

func (a *xoauth2) Start() (string, []byte, error) {
	ir := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(ir), nil
}

// Next is only reached when the server rejects the token; the challenge
// carries its JSON error.
func (a *xoauth2) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("xoauth2 rejected: %s", challenge)
}
