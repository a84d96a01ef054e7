package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fp string) Key {
	return Key{
		Deployment:  "openai/gpt-4o-mini",
		Fields:      []string{"invoice_number", "issue_date"},
		Fingerprint: fp,
		Snapshot:    map[string]any{"invoice_number": "INV-1"},
	}
}

func TestKeyHashStableUnderOrdering(t *testing.T) {
	a := Key{
		Deployment:  "d",
		Fields:      []string{"b", "a"},
		Fingerprint: "fp",
		Snapshot:    map[string]any{"x": "1", "y": "2"},
	}
	b := Key{
		Deployment:  "d",
		Fields:      []string{"a", "b"},
		Fingerprint: "fp",
		Snapshot:    map[string]any{"y": "2", "x": "1"},
	}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestKeyHashSensitivity(t *testing.T) {
	base := testKey("fp-1")

	other := testKey("fp-2")
	assert.NotEqual(t, base.Hash(), other.Hash(), "fingerprint must affect the key")

	other = testKey("fp-1")
	other.Snapshot = map[string]any{"invoice_number": "INV-2"}
	assert.NotEqual(t, base.Hash(), other.Hash(), "value snapshot must affect the key")

	other = testKey("fp-1")
	other.Deployment = "openai/gpt-4o"
	assert.NotEqual(t, base.Hash(), other.Hash(), "deployment identity must affect the key")
}

func TestGetWithinTTL(t *testing.T) {
	c := New(time.Minute, 4)
	c.Set(testKey("fp"), `{"ok":true}`)

	got, ok := c.Get(testKey("fp"))
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute, 4)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(testKey("fp"), "reply")

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok := c.Get(testKey("fp"))
	assert.False(t, ok, "expired entry must read as a miss")
}

func TestLRUEviction(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set(testKey("fp-1"), "r1")
	c.Set(testKey("fp-2"), "r2")

	// Touch fp-1 so fp-2 is least recently used.
	_, ok := c.Get(testKey("fp-1"))
	require.True(t, ok)

	c.Set(testKey("fp-3"), "r3")

	_, ok = c.Get(testKey("fp-2"))
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.Get(testKey("fp-1"))
	assert.True(t, ok)
	_, ok = c.Get(testKey("fp-3"))
	assert.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := testKey(fmt.Sprintf("fp-%d", (i+j)%32))
				c.Set(k, "reply")
				c.Get(k)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
