package activitypub

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("internal/activitypub")

// Memcache is the subset of *memcache.Client used by CachingFetcher.
type Memcache interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
}

// CachingFetcher serves documents from memcache, falling back to the
// wrapped Fetcher on a miss.
type CachingFetcher struct {
	Fetcher
	mc  Memcache
	ttl time.Duration
}

// NewCachingFetcher returns a Fetcher which caches documents in mc for ttl.
func NewCachingFetcher(f Fetcher, mc Memcache, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{
		Fetcher: f,
		mc:      mc,
		ttl:     ttl,
	}
}

func (c *CachingFetcher) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "CachingFetcher.FetchBytes")
	defer span.End()

	key := cacheKey(uri)
	item, err := c.mc.Get(key)
	switch {
	case err == nil:
		return item.Value, nil
	case !errors.Is(err, memcache.ErrCacheMiss):
		slog.Warn("memcache get", "uri", uri, "error", err)
	}

	body, err := c.Fetcher.FetchBytes(ctx, uri)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := c.mc.Set(&memcache.Item{
		Key:        key,
		Value:      body,
		Expiration: int32(c.ttl / time.Second),
	}); err != nil {
		slog.Warn("memcache set", "uri", uri, "error", err)
	}
	return body, nil
}

// cacheKey maps uri into the memcache key space, which forbids
// whitespace and keys longer than 250 bytes.
func cacheKey(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return "ap:" + hex.EncodeToString(sum[:])
}
