package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/klauspost/compress/zstd"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

const keyPrefix = "assessment:"

// maxRelativeExp is the largest relative expiration memcached accepts (30 days).
// Larger values are read as an absolute Unix time.
const maxRelativeExp = 30 * 24 * 60 * 60

// flagZstd marks an item whose JSON value is zstd-compressed. Items without
// it are plain JSON.
const flagZstd uint32 = 1

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codec returns the shared zstd encoder and decoder. EncodeAll and DecodeAll
// are safe for concurrent use.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return encoder, decoder, codecErr
}

func encodeValue(a models.Assessment) ([]byte, uint32, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, 0, err
	}
	enc, _, err := codec()
	if err != nil {
		return raw, 0, nil
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), flagZstd, nil
}

func decodeValue(value []byte, flags uint32) (models.Assessment, error) {
	var a models.Assessment
	if flags&flagZstd != 0 {
		_, dec, err := codec()
		if err != nil {
			return a, err
		}
		value, err = dec.DecodeAll(value, nil)
		if err != nil {
			return a, fmt.Errorf("decompress: %w", err)
		}
	}
	if err := json.Unmarshal(value, &a); err != nil {
		return a, err
	}
	return a, nil
}

// MemcachedCache implements Cache on memcached with zstd-compressed JSON values.
type MemcachedCache struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout or
// maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, now: time.Now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain spaces or control characters; coordinate keys never do.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Assessment, bool, error) {
	if ctx.Err() != nil {
		return models.Assessment{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Assessment{}, false, nil
		}
		return models.Assessment{}, false, err
	}
	a, err := decodeValue(item.Value, item.Flags)
	if err != nil {
		return models.Assessment{}, false, err
	}
	return a, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Assessment, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Already expired; memcached would read 0 as "never".
	if ttl <= 0 {
		return nil
	}
	raw, flags, err := encodeValue(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Flags:      flags,
		Expiration: expirationSeconds(ttl, c.now()),
	})
}

// expirationSeconds converts a positive ttl to memcached's Expiration field.
// Partial seconds round up so short TTLs never become "no expiry"; TTLs over
// 30 days are sent as the absolute expiry time.
func expirationSeconds(ttl time.Duration, now time.Time) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > maxRelativeExp {
		return int32(now.Add(ttl).Unix())
	}
	return int32(secs)
}

// Ping checks that memcached is reachable. Used by /health.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
