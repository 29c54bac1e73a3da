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

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	if ok, _ := l.TryAcquire(ctx); !ok {
		t.Fatal("first TryAcquire = false, want true")
	}
	if ok, _ := l.TryAcquire(ctx); ok {
		t.Fatal("second TryAcquire = true while held")
	}
	_ = l.Release(ctx)
	if ok, _ := l.TryAcquire(ctx); !ok {
		t.Fatal("TryAcquire after Release = false, want true")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// TestRedisGuard_Exclusive verifies two instances cannot hold the lock at
// the same time.
func TestRedisGuard_Exclusive(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	a := NewRedisGuard(rdb, "", time.Minute)
	b := NewRedisGuard(rdb, "", time.Minute)

	if ok, err := a.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("a.TryAcquire = %v, %v", ok, err)
	}
	if ok, err := b.TryAcquire(ctx); err != nil || ok {
		t.Fatalf("b.TryAcquire = %v, %v; want false", ok, err)
	}
	if ttl := mr.TTL(DefaultKey); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	// b does not own the lock, so its release is a no-op.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("b.Release: %v", err)
	}
	if !mr.Exists(DefaultKey) {
		t.Fatal("lock released by non-owner")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release: %v", err)
	}
	if ok, _ := b.TryAcquire(ctx); !ok {
		t.Fatal("b.TryAcquire after release = false, want true")
	}
}

func TestRedisGuard_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	a := NewRedisGuard(rdb, "k", time.Minute)
	b := NewRedisGuard(rdb, "k", time.Minute)

	_, _ = a.TryAcquire(ctx)
	mr.FastForward(2 * time.Minute)

	if ok, _ := b.TryAcquire(ctx); !ok {
		t.Fatal("lock not free after TTL")
	}
	// a's stale release must not free b's lock.
	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release: %v", err)
	}
	if !mr.Exists("k") {
		t.Error("stale owner released the lock")
	}
}

func TestRedisGuard_Unavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	if _, err := NewRedisGuard(rdb, "", 0).TryAcquire(context.Background()); err == nil {
		t.Error("TryAcquire succeeded with Redis down")
	}
}
