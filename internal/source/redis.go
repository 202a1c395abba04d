package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hash fields of a stored page.
const (
	fieldBody        = "body"
	fieldContentType = "content_type"
	fieldProductID   = "product_id"
)

// RedisSource serves pre-rendered page snapshots kept in Redis. Each page is
// a hash under <prefix><path> with body, content_type and product_id fields.
type RedisSource struct {
	Client *redis.Client
	prefix string
}

// InitRedis connects to Redis and returns a RedisSource.
func InitRedis(ctx context.Context, addr, prefix string) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return NewRedisSource(client, prefix), nil
}

// NewRedisSource wraps an existing client.
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	return &RedisSource{Client: client, prefix: prefix}
}

func (s *RedisSource) Name() string { return "redis" }

func (s *RedisSource) key(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.prefix + path
}

// Fetch returns the snapshot stored for path.
func (s *RedisSource) Fetch(ctx context.Context, path string, _ http.Header) (*Page, error) {
	vals, err := s.Client.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", path, err)
	}
	body, ok := vals[fieldBody]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, path)
	}
	return &Page{
		Status:      http.StatusOK,
		ContentType: vals[fieldContentType],
		Header:      http.Header{},
		Body:        []byte(body),
		ProductID:   vals[fieldProductID],
	}, nil
}

// SavePage stores a snapshot for path, replacing any previous one.
func (s *RedisSource) SavePage(ctx context.Context, path string, p *Page) error {
	if p == nil {
		return errors.New("nil page")
	}
	key := s.key(path)
	contentType := p.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldBody, string(p.Body),
			fieldContentType, contentType,
			fieldProductID, p.ProductID,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save page %s: %w", path, err)
	}
	return nil
}

// DeletePage removes the snapshot for path.
func (s *RedisSource) DeletePage(ctx context.Context, path string) error {
	return s.Client.Del(ctx, s.key(path)).Err()
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.Client.Close()
}
