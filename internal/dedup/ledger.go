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

// Package dedup provides the processed-message ledger. A Ledger keeps an
// in-memory mirror of every identity that must never trigger another
// notification, backed by a durable append-only Store.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the durable side of the ledger. Append must be idempotent:
// membership, not count, is the semantic.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, id string) error
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ledger tracks which message identities have already been processed.
type Ledger struct {
	store Store

	mu   sync.RWMutex
	seen map[string]struct{}
}

// Open loads every identity from the store into memory. It is called once
// at process start; the mirror is never reloaded afterwards.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	l := &Ledger{
		store: store,
		seen:  make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		if id != "" {
			l.seen[id] = struct{}{}
		}
	}

	slog.Info("ledger loaded", "entries", len(l.seen))
	return l, nil
}

// IsProcessed reports whether id is in the ledger. It reads only the mirror.
func (l *Ledger) IsProcessed(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// MarkProcessed records id in the mirror and appends it to the store in the
// same call. The mirror keeps the entry even when the append fails so this
// process does not notify twice; the error is returned for logging.
func (l *Ledger) MarkProcessed(ctx context.Context, id string) error {
	l.mu.Lock()
	_, dup := l.seen[id]
	l.seen[id] = struct{}{}
	l.mu.Unlock()

	if dup {
		return nil
	}

	if err := l.store.Append(ctx, id); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Len returns the number of identities in the mirror.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

// Ping checks the backing store when it is a network service.
func (l *Ledger) Ping(ctx context.Context) error {
	if p, ok := l.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
