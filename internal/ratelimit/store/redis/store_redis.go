// Package redis backs the rate limiter's counters and bypass flags with
// Redis so multiple gateway instances share one view of each window.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"medgate/internal/ratelimit/models"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

const (
	counterPrefix = "medgate:ratelimit:counter:"
	bypassKey     = "medgate:ratelimit:bypass"
)

// CounterStore stores each counter as a hash of count and window start.
// Keys expire well after the window ends so stale counters clean themselves
// up without affecting the lazy-roll semantics.
type CounterStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCounterStore(client *goredis.Client, ttl time.Duration) *CounterStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CounterStore{client: client, ttl: ttl}
}

func counterRedisKey(principal id.Principal, operation string) string {
	return counterPrefix + principal.String() + ":" + operation
}

func (s *CounterStore) Get(ctx context.Context, principal id.Principal, operation string) (models.Counter, bool, error) {
	vals, err := s.client.HGetAll(ctx, counterRedisKey(principal, operation)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return models.Counter{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "read rate limit counter")
	}
	if len(vals) == 0 {
		return models.Counter{}, false, nil
	}

	count, err := strconv.ParseUint(vals["count"], 10, 32)
	if err != nil {
		return models.Counter{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "decode rate limit count")
	}
	windowStart, err := strconv.ParseInt(vals["window_start"], 10, 64)
	if err != nil {
		return models.Counter{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "decode rate limit window start")
	}

	return models.Counter{
		Principal:    principal,
		Operation:    operation,
		CurrentCount: uint32(count),
		WindowStart:  time.Unix(windowStart, 0).UTC(),
	}, true, nil
}

func (s *CounterStore) Put(ctx context.Context, counter models.Counter) error {
	key := counterRedisKey(counter.Principal, counter.Operation)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"count", strconv.FormatUint(uint64(counter.CurrentCount), 10),
		"window_start", strconv.FormatInt(counter.WindowStart.Unix(), 10),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write rate limit counter")
	}
	return nil
}

// BypassStore stores bypass flags as members of one Redis set.
type BypassStore struct {
	client *goredis.Client
}

func NewBypassStore(client *goredis.Client) *BypassStore {
	return &BypassStore{client: client}
}

func (s *BypassStore) Set(ctx context.Context, principal id.Principal, enabled bool) error {
	var err error
	if enabled {
		err = s.client.SAdd(ctx, bypassKey, principal.String()).Err()
	} else {
		err = s.client.SRem(ctx, bypassKey, principal.String()).Err()
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write rate limit bypass")
	}
	return nil
}

func (s *BypassStore) Has(ctx context.Context, principal id.Principal) (bool, error) {
	ok, err := s.client.SIsMember(ctx, bypassKey, principal.String()).Result()
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read rate limit bypass")
	}
	return ok, nil
}
