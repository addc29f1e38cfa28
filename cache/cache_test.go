package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/neardup/models"
)

func TestKey(t *testing.T) {
	a := Key([]uint64{1, 2, 3}, "d=3;r=8")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key([]uint64{1, 2, 3}, "d=3;r=8"))
	assert.NotEqual(t, a, Key([]uint64{1, 2, 4}, "d=3;r=8"))
	assert.NotEqual(t, a, Key([]uint64{1, 2, 3}, "d=2;r=8"))
	assert.NotEqual(t, a, Key([]uint64{3, 2, 1}, "d=3;r=8"), "order matters")
}

func TestCache_MaxAge(t *testing.T) {
	c := New(10, time.Minute)
	resp := &models.SimilarResponse{Success: true, Count: 1}
	c.Set("k", resp)

	_, ok := c.Get("k", 0)
	assert.False(t, ok, "max_age 0 skips the lookup")

	got, ok := c.Get("k", 60_000)
	require.True(t, ok)
	assert.Same(t, resp, got)

	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get("k", 1)
	assert.False(t, ok, "entry older than max_age")

	_, ok = c.Get("missing", 60_000)
	assert.False(t, ok)
}

func TestCache_Capacity(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", &models.SimilarResponse{})
	c.Set("b", &models.SimilarResponse{})
	c.Set("c", &models.SimilarResponse{})
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("c", 60_000)
	assert.True(t, ok, "newest entry is kept")

	c.Set("c", &models.SimilarResponse{Count: 7})
	assert.Equal(t, 2, c.Len(), "overwrite does not evict")
}

func TestCache_TTL(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	c.Set("k", &models.SimilarResponse{})
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k", 60_000)
	assert.False(t, ok)
}
