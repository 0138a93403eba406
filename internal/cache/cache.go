package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

const keyMetadata = "bilimusic:meta:"

type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

// New connects to the Redis server at redisURL (redis://host:port/db)
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logger.Default().WithComponent("cache")
	log.Info(ctx, "connected to redis", map[string]interface{}{"addr": opts.Addr})
	return &Cache{client: client, log: log}, nil
}

// Client returns the underlying Redis client for pub/sub and health checks
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", map[string]interface{}{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache get failed", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", map[string]interface{}{"key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	c.log.Debug(ctx, "cache set", map[string]interface{}{"key": key, "ttl": ttl.String()})
	return nil
}

// MetadataStore caches extractor metadata keyed by video URL
type MetadataStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewMetadataStore wraps c for metadata lookups that expire after ttl
func NewMetadataStore(c *Cache, ttl time.Duration) *MetadataStore {
	return &MetadataStore{cache: c, ttl: ttl}
}

// GetMetadata returns cached metadata for url
func (s *MetadataStore) GetMetadata(ctx context.Context, url string) (*extract.Metadata, bool) {
	raw, ok := s.cache.Get(ctx, keyMetadata+url)
	if !ok {
		return nil, false
	}
	var m extract.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return &m, true
}

// SetMetadata stores m for url
func (s *MetadataStore) SetMetadata(ctx context.Context, url string, m *extract.Metadata) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.cache.Set(ctx, keyMetadata+url, string(data), s.ttl)
}
