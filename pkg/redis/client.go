// Package redis holds the storefront's Redis access: replayed HTTP responses,
// analytics dedupe markers, rate-limit windows and the cron lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Scope is the second segment of every key, after the key prefix.
type Scope string

const (
	// ScopeRequest keys hold responses replayed for a repeated Idempotency-Key.
	ScopeRequest Scope = "req"
	// ScopeEvent keys mark outbox events a consumer already handled.
	ScopeEvent Scope = "evt"
	// ScopeRateLimit keys count requests per caller and window.
	ScopeRateLimit Scope = "rl"
	// ScopeCronLock keys hold the owner of the cron worker lock.
	ScopeCronLock Scope = "cron"
)

const defaultKeyPrefix = "sf"

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

type Client struct {
	cmd    cmdable
	raw    *redis.Client
	prefix string
	now    func() time.Time
}

// IdempotencyStore is what request replay and consumer dedupe need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	Key(scope Scope, parts ...string) string
}

// New connects to Redis and pings it once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return newClient(raw, cfg.KeyPrefix, raw), nil
}

func newClient(cmd cmdable, prefix string, raw *redis.Client) *Client {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Client{cmd: cmd, raw: raw, prefix: prefix, now: time.Now}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	// URL settings win; config fills the rest.
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

// Key builds `<prefix>:<scope>:<parts...>`, skipping empty parts.
func (c *Client) Key(scope Scope, parts ...string) string {
	segments := []string{c.prefix, string(scope)}
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			segments = append(segments, p)
		}
	}
	return strings.Join(segments, ":")
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmd == nil {
		return "", errNotInitialized
	}
	return c.cmd.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmd == nil {
		return false, errNotInitialized
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmd == nil {
		return errNotInitialized
	}
	return c.cmd.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one request for caller in the current window.
// Windows are aligned to the clock, so each one gets its own key and a lost
// EXPIRE only leaves a stale counter behind.
func (c *Client) FixedWindowAllow(ctx context.Context, caller string, limit int64, window time.Duration) (bool, int64, error) {
	if c.cmd == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		return false, 0, errors.New("rate limit window must be positive")
	}
	bucket := c.now().UnixNano() / int64(window)
	key := c.Key(ScopeRateLimit, caller, strconv.FormatInt(bucket, 10))

	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := c.cmd.Expire(ctx, key, 2*window).Err(); err != nil {
			return true, count, err
		}
	}
	return count <= limit, count, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.cmd == nil {
		return errNotInitialized
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
