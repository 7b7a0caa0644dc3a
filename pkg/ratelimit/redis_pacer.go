package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix namespaces pacer keys in Redis.
const KeyPrefix = "permits:pacer:"

// pollInterval bounds how long a waiter sleeps when the slot has no usable TTL.
const pollInterval = 10 * time.Millisecond

// RedisPacer spaces requests from every process sharing the same key.
//
// Each Wait pauses for the local delay and then claims a slot with
// SET key NX PX delay. While another process holds the slot the caller sleeps
// for the slot's remaining TTL and tries again.
type RedisPacer struct {
	redis  *redis.Client
	key    string
	delay  time.Duration
	owner  string
	logger zerolog.Logger
}

// NewRedisPacer creates a shared pacer.
func NewRedisPacer(redisClient *redis.Client, key string, delay time.Duration, logger zerolog.Logger) *RedisPacer {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisPacer{
		redis:  redisClient,
		key:    key,
		delay:  delay,
		owner:  fmt.Sprintf("pid-%d", os.Getpid()),
		logger: logger,
	}
}

// KeyForURL derives the pacer key from the portal host, so exporters for
// different datasets on one portal share a slot.
func KeyForURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return KeyPrefix + baseURL
	}
	return KeyPrefix + u.Host
}

// Key returns the Redis key used for the slot.
func (p *RedisPacer) Key() string {
	return p.key
}

// Wait blocks until the local delay has passed and the shared slot is free.
// Redis failures degrade to the local delay.
func (p *RedisPacer) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		pacerWaitSeconds.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	}()

	if p.delay <= 0 {
		return ctx.Err()
	}

	if err := sleep(ctx, p.delay); err != nil {
		return err
	}

	for {
		err := p.acquire(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var busy *slotBusyError
		if !errors.As(err, &busy) {
			p.logger.Warn().
				Err(err).
				Str("key", p.key).
				Msg("Shared pacer unavailable, using local delay only")
			return nil
		}

		p.logger.Debug().
			Str("key", p.key).
			Dur("wait", busy.wait).
			Msg("Pacer slot held by another process")

		if err := sleep(ctx, busy.wait); err != nil {
			return err
		}
	}
}

// slotBusyError reports that another process holds the slot.
type slotBusyError struct {
	wait time.Duration
}

func (e *slotBusyError) Error() string {
	return fmt.Sprintf("pacer slot busy for %s", e.wait)
}

// acquire claims the slot or reports how long it stays busy.
func (p *RedisPacer) acquire(ctx context.Context) error {
	ok, err := p.redis.SetNX(ctx, p.key, p.owner, p.delay).Result()
	if err != nil {
		return fmt.Errorf("claim pacer slot: %w", err)
	}
	if ok {
		return nil
	}

	ttl, err := p.redis.PTTL(ctx, p.key).Result()
	if err != nil {
		return fmt.Errorf("read pacer slot ttl: %w", err)
	}

	switch {
	case ttl == -1:
		// Slot without expiry would block every exporter forever.
		if err := p.redis.PExpire(ctx, p.key, p.delay).Err(); err != nil {
			return fmt.Errorf("expire stale pacer slot: %w", err)
		}
		return &slotBusyError{wait: pollInterval}
	case ttl <= 0:
		return &slotBusyError{wait: pollInterval}
	default:
		return &slotBusyError{wait: ttl}
	}
}
