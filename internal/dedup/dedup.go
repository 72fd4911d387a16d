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

// Package dedup provides a short-lived Redis claim per alert subject so
// that overlapping sweeps (a cron run and a manual trigger, or two
// replicas) do not race each other into the same insert.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a claim is held. It only has to outlive one
	// raise; the datastore's pending-alert index is the lasting guard.
	DefaultTTL = 2 * time.Minute

	// keyPrefix namespaces claim keys in Redis.
	keyPrefix = "procmon:alert:"
)

// Client is the subset of *redis.Client a Guard uses.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Guard hands out claims on (kind, subject) pairs.
type Guard struct {
	rdb Client
	ttl time.Duration
}

// NewGuard creates a claim guard backed by Redis.
func NewGuard(rdb Client) *Guard {
	return &Guard{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// Key returns the Redis key for a kind and subject key.
func Key(kind, subject string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, kind, subject)
}

// Claim returns true if no other caller currently holds the pair. The claim
// is taken atomically (SETNX) and expires on its own.
func (g *Guard) Claim(ctx context.Context, kind, subject string) (bool, error) {
	set, err := g.rdb.SetNX(ctx, Key(kind, subject), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Release drops a claim early once the caller is done with it.
func (g *Guard) Release(ctx context.Context, kind, subject string) error {
	if err := g.rdb.Del(ctx, Key(kind, subject)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
