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

// Package mailbox reads monitored messages over IMAP and parses them into
// inbound messages.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every IMAP command.
const DefaultTimeout = 60 * time.Second

// ErrNoBody is returned when the server answers a fetch without the body.
var ErrNoBody = errors.New("message body missing")

// Config holds connection settings. Tokens is set for XOAUTH2; otherwise
// Password is used with LOGIN.
type Config struct {
	Server   string
	Port     int
	User     string
	Password string
	Mailbox  string
	Tokens   oauth2.TokenSource
	Timeout  time.Duration
}

// Client opens IMAP sessions.
type Client struct {
	cfg  Config
	dial func(addr string) (*client.Client, error)
}

// NewClient creates a client that connects over implicit TLS.
func NewClient(cfg Config) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg: cfg,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

// Dial connects, authenticates and selects the mailbox read-only. The
// session is torn down if ctx ends while it is open.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port))
	slog.Info("connecting to IMAP server", "addr", addr, "user", c.cfg.User)

	conn, err := c.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.Timeout = c.cfg.Timeout

	if err := c.authenticate(ctx, conn); err != nil {
		_ = conn.Logout()
		return nil, err
	}

	if _, err := conn.Select(c.cfg.Mailbox, true); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("select %s: %w", c.cfg.Mailbox, err)
	}

	s := &Session{conn: conn}
	s.stop = context.AfterFunc(ctx, func() {
		_ = conn.Terminate()
	})
	slog.Info("IMAP session ready", "mailbox", c.cfg.Mailbox)
	return s, nil
}

func (c *Client) authenticate(ctx context.Context, conn *client.Client) error {
	if c.cfg.Tokens == nil {
		if err := conn.Login(c.cfg.User, c.cfg.Password); err != nil {
			return fmt.Errorf("login %s: %w", c.cfg.User, err)
		}
		return nil
	}

	tok, err := c.cfg.Tokens.Token()
	if err != nil {
		return fmt.Errorf("fetch oauth token: %w", err)
	}
	if err := conn.Authenticate(newXOAuth2(c.cfg.User, tok.AccessToken)); err != nil {
		return fmt.Errorf("xoauth2 %s: %w", c.cfg.User, err)
	}
	return nil
}

// Session is one authenticated IMAP connection. Close must be called on
// every exit path.
type Session struct {
	conn *client.Client
	stop func() bool
}

// Search returns the UIDs of messages from sender on or after since, in
// server order.
func (s *Session) Search(ctx context.Context, from string, since time.Time) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", from)
	criteria.Since = since

	uids, err := s.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search from %s: %w", from, err)
	}
	return uids, nil
}

// Fetch returns the raw RFC 5322 bytes of a message without setting \Seen.
func (s *Session) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.conn.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read uid %d: %w", uid, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, ErrNoBody)
	}
	return raw, nil
}

// Close closes the mailbox and logs out. It is safe to call more than once.
func (s *Session) Close() error {
	if s.stop != nil {
		s.stop()
	}
	if s.conn.State() == imap.LogoutState {
		return nil
	}
	if s.conn.State() == imap.SelectedState {
		if err := s.conn.Close(); err != nil {
			slog.Warn("IMAP close failed", "error", err)
		}
	}
	if err := s.conn.Logout(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
