package attention

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPredictiveCacheLRUEviction checks that a get refreshes recency, so
// the untouched entry is the one evicted at capacity.
func TestPredictiveCacheLRUEviction(t *testing.T) {
	c := NewPredictiveCache(3)
	c.Put("s1", nil)
	c.Put("s2", nil)
	c.Put("s3", nil)
	_, _ = c.Get("s1")
	c.Put("s4", nil)

	keys := c.Keys()
	require.ElementsMatch(t, []string{"s1", "s3", "s4"}, keys)
}

func TestPredictiveCacheClear(t *testing.T) {
	c := NewPredictiveCache(2)
	c.Put("a", 1)
	c.Clear()
	require.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	require.False(t, ok)
}
