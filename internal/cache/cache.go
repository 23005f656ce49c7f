// Package cache memoises describer-free conversions by input content and
// output-affecting options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"

	"github.com/dgallion1/docmark/internal/convert"
)

// Stats reports cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache is an LRU of conversion results. A nil *Cache converts without caching.
type Cache struct {
	lru    *lru.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// New returns a cache holding up to size results, or nil when size <= 0.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "create lru")
	}
	return &Cache{lru: l}, nil
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key combines the input hash with the options fingerprint.
func Key(data []byte, opts convert.Options) string {
	return ContentHashHex(data) + "/" + opts.Fingerprint()
}

// Cacheable reports whether a conversion with opts is deterministic.
func Cacheable(opts convert.Options) bool {
	return opts.Describer == nil && opts.AsyncDescriber == nil && opts.Limits.Observer == nil
}

// Convert returns a cached result when one exists, converting and storing
// otherwise. Failed conversions are not cached. The bool reports a hit.
func (c *Cache) Convert(ctx context.Context, data []byte, opts convert.Options) (*convert.Result, bool, error) {
	if c == nil || !Cacheable(opts) {
		res, err := convert.Convert(ctx, data, opts)
		return res, false, err
	}
	key := Key(data, opts)
	if v, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return v.(*convert.Result), true, nil
	}
	c.misses.Add(1)
	res, err := convert.Convert(ctx, data, opts)
	if err != nil {
		return nil, false, err
	}
	c.lru.Add(key, res)
	return res, false, nil
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Entries: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
