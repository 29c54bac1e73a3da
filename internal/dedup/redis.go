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

package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the Redis SET holding processed identities.
const DefaultRedisKey = "orderwatch:processed"

// RedisStore keeps the ledger in a Redis SET. Entries never expire.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a store backed by the SET at key.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

// Load returns every member of the SET.
func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger SMEMBERS: %w", err)
	}
	return ids, nil
}

// Append adds id to the SET. SADD is idempotent.
func (s *RedisStore) Append(ctx context.Context, id string) error {
	if err := s.rdb.SAdd(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("ledger SADD: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
