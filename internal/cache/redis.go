// Package cache provides the Redis-backed search response cache and the
// per-organization recent-query feed. Both are optional: the API runs
// uncached when Redis is not configured.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"guardrail/api/internal/search"
)

const (
	searchPrefix = "search:"
	recentPrefix = "recent:"
	recentMax    = 20
	recentTTL    = 7 * 24 * time.Hour
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis cache from a URL. ttl bounds how long search responses
// stay cached.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient creates a cache from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// SearchKey derives the cache key for a query: tenant plus a digest of every
// input that affects the response.
func SearchKey(q search.Query) string {
	types := make([]string, 0, len(q.EntityTypes))
	for _, entity := range q.EntityTypes {
		types = append(types, string(entity))
	}
	sort.Strings(types)

	filterKeys := make([]string, 0, len(q.Filters))
	for key := range q.Filters {
		filterKeys = append(filterKeys, key)
	}
	sort.Strings(filterKeys)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Text)))
	b.WriteString("|")
	b.WriteString(strings.Join(types, ","))
	b.WriteString("|")
	for _, key := range filterKeys {
		fmt.Fprintf(&b, "%s=%s;", key, q.Filters[key])
	}
	fmt.Fprintf(&b, "|%d|%d", q.Page, q.PageSize)

	sum := sha256.Sum256([]byte(b.String()))
	return searchPrefix + q.OrganizationID + ":" + hex.EncodeToString(sum[:])
}

// GetSearch returns a cached response if present. A miss is (zero, false, nil).
func (c *Cache) GetSearch(ctx context.Context, key string) (search.Response, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return search.Response{}, false, nil
	}
	if err != nil {
		return search.Response{}, false, fmt.Errorf("cache get: %w", err)
	}

	var resp search.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return search.Response{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return resp, true, nil
}

func (c *Cache) SetSearch(ctx context.Context, key string, resp search.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// RecordQuery pushes a query onto the organization's recent-query feed,
// deduplicating and keeping the newest recentMax entries.
func (c *Cache) RecordQuery(ctx context.Context, organizationID, text string) error {
	key := recentPrefix + organizationID
	pipe := c.client.TxPipeline()
	pipe.LRem(ctx, key, 0, text)
	pipe.LPush(ctx, key, text)
	pipe.LTrim(ctx, key, 0, recentMax-1)
	pipe.Expire(ctx, key, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// RecentQueries returns the organization's recent searches, newest first.
func (c *Cache) RecentQueries(ctx context.Context, organizationID string) ([]string, error) {
	values, err := c.client.LRange(ctx, recentPrefix+organizationID, 0, recentMax-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent queries: %w", err)
	}
	return values, nil
}
