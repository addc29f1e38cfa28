package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/use-agent/neardup/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.SimilarResponse
	createdAt time.Time
}

// Cache is an in-memory cache for similar-pairs responses.
// It is safe for concurrent use.
type Cache struct {
	store      *gocache.Cache
	maxEntries int
}

// New creates a Cache holding at most maxEntries responses, each for at most
// ttl. Expired entries are swept every ttl/2.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		store:      gocache.New(ttl, ttl/2),
		maxEntries: maxEntries,
	}
}

// Key generates a cache key from the fingerprints and a canonical description
// of the search parameters.
func Key(fingerprints []uint64, search string) string {
	h := sha256.New()
	var buf [8]byte
	for _, fp := range fingerprints {
		binary.BigEndian.PutUint64(buf[:], fp)
		h.Write(buf[:])
	}
	h.Write([]byte("|"))
	h.Write([]byte(search))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// Returns the response and whether it was a cache hit.
func (c *Cache) Get(key string, maxAgeMs int) (*models.SimilarResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	return e.response, true
}

// Set stores a response in the cache. If the cache is at capacity,
// an arbitrary entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.SimilarResponse) {
	if _, exists := c.store.Get(key); !exists && c.store.ItemCount() >= c.maxEntries {
		for k := range c.store.Items() {
			c.store.Delete(k)
			break
		}
	}

	c.store.SetDefault(key, &entry{
		response:  resp,
		createdAt: time.Now(),
	})
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	return len(c.store.Items())
}
