// Package linkcache provides LinkerCache implementations for hosts that
// link the same programs repeatedly, such as editors reloading on save.
package linkcache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
)

// DefaultMaxEntries bounds a Memory cache when Config leaves it zero.
const DefaultMaxEntries = 128

// Config holds configuration for Memory caches
type Config struct {
	// MaxEntries is the number of artifacts kept before the least recently
	// used one is evicted. 0 means DefaultMaxEntries.
	MaxEntries int
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Puts      uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

// Memory is an in-process LRU LinkerCache. Get and Put copy artifacts so
// callers may reuse their buffers. Safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	lru   *lru.Cache
	stats Stats
}

var _ dspruntime.LinkerCache = (*Memory)(nil)

// NewMemory creates an empty cache. A nil cfg uses the defaults.
func NewMemory(cfg *Config) *Memory {
	entries := DefaultMaxEntries
	if cfg != nil && cfg.MaxEntries > 0 {
		entries = cfg.MaxEntries
	}
	m := &Memory{lru: lru.New(entries)}
	m.lru.OnEvicted = m.evicted
	return m
}

// evicted runs with m.mu held.
func (m *Memory) evicted(key lru.Key, value interface{}) {
	m.stats.Evictions++
	m.stats.Bytes -= int64(len(value.([]byte)))
	dspruntime.Logger().Debug("linker cache eviction", zap.String("key", string(key.(dspruntime.CacheKey))))
}

func (m *Memory) Get(key dspruntime.CacheKey) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lru.Get(key)
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.stats.Hits++
	return clone(v.([]byte)), true
}

func (m *Memory) Put(key dspruntime.CacheKey, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Puts++
	if old, ok := m.lru.Get(key); ok {
		m.stats.Bytes -= int64(len(old.([]byte)))
	}
	m.stats.Bytes += int64(len(data))
	m.lru.Add(key, clone(data))
}

// Remove drops one entry. It does not count as an eviction.
func (m *Memory) Remove(key dspruntime.CacheKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.lru.Get(key); ok {
		m.stats.Bytes -= int64(len(old.([]byte)))
		m.lru.OnEvicted = nil
		m.lru.Remove(key)
		m.lru.OnEvicted = m.evicted
	}
}

// Purge drops every entry and keeps the counters.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.OnEvicted = nil
	m.lru.Clear()
	m.lru.OnEvicted = m.evicted
	m.stats.Bytes = 0
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Entries = m.lru.Len()
	return s
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// Nop never stores anything. Every Get misses.
type Nop struct{}

var _ dspruntime.LinkerCache = Nop{}

func (Nop) Get(dspruntime.CacheKey) ([]byte, bool) { return nil, false }
func (Nop) Put(dspruntime.CacheKey, []byte)        {}
