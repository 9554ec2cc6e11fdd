package linkcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/internal/performtest"
	"github.com/wippyai/dsp-runtime/interp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func key(i int) dspruntime.CacheKey {
	return dspruntime.CacheKey(fmt.Sprintf("v1/test/%d", i))
}

func TestGetPut(t *testing.T) {
	c := NewMemory(nil)
	_, ok := c.Get(key(1))
	assert.False(t, ok)

	data := []byte{1, 2, 3}
	c.Put(key(1), data)
	data[0] = 9

	got, ok := c.Get(key(1))
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got, "put copies")
	got[1] = 9
	again, _ := c.Get(key(1))
	assert.Equal(t, []byte{1, 2, 3}, again, "get copies")

	assert.Equal(t, Stats{Hits: 2, Misses: 1, Puts: 1, Entries: 1, Bytes: 3}, c.Stats())
}

func TestEviction(t *testing.T) {
	c := NewMemory(&Config{MaxEntries: 2})
	c.Put(key(1), []byte{1})
	c.Put(key(2), []byte{2, 2})
	_, _ = c.Get(key(1))
	c.Put(key(3), []byte{3, 3, 3})

	_, ok := c.Get(key(2))
	assert.False(t, ok, "least recently used entry goes first")
	_, ok = c.Get(key(1))
	assert.True(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Evictions)
	assert.Equal(t, 2, s.Entries)
	assert.Equal(t, int64(4), s.Bytes)
}

func TestReplaceAndRemove(t *testing.T) {
	c := NewMemory(nil)
	c.Put(key(1), []byte{1, 1})
	c.Put(key(1), []byte{1})
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Bytes)

	c.Remove(key(1))
	c.Remove(key(2))
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Evictions)
	assert.Zero(t, c.Stats().Bytes)
}

func TestPurge(t *testing.T) {
	c := NewMemory(nil)
	for i := range 10 {
		c.Put(key(i), []byte{byte(i)})
	}
	c.Purge()
	assert.Zero(t, c.Len())
	s := c.Stats()
	assert.Equal(t, uint64(10), s.Puts)
	assert.Zero(t, s.Evictions)
	assert.Zero(t, s.Bytes)
}

func TestConcurrentAccess(t *testing.T) {
	c := NewMemory(&Config{MaxEntries: 8})
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				k := key((g + i) % 16)
				if _, ok := c.Get(k); !ok {
					c.Put(k, []byte{byte(i)})
				}
			}
		}()
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, uint64(1600), s.Hits+s.Misses)
	assert.LessOrEqual(t, s.Entries, 8)
}

func TestNop(t *testing.T) {
	var c Nop
	c.Put(key(1), []byte{1})
	_, ok := c.Get(key(1))
	assert.False(t, ok)
}

func TestServesPerformers(t *testing.T) {
	c := NewMemory(nil)
	f := interp.NewFactory()
	for range 3 {
		perf := performtest.Load(t, f, performtest.Delayed(4))
		performtest.Link(t, perf, dspruntime.DefaultLinkOptions(), c)
	}
	s := c.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, 1, s.Entries)
}
