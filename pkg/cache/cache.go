// Package cache implements the Result Cache: a bounded, TTL-expiring
// memoization of idempotent tool calls keyed by tool name and canonical
// argument JSON.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultTTL     = 2 * time.Minute
	defaultMaxSize = 500
	sweepInterval  = 30 * time.Second
)

var cacheablePrefixes = []string{"read_", "list_", "get_", "search_", "find_", "fetch_"}

var deniedNames = map[string]bool{
	"git_commit": true,
	"git_push":   true,
}

var deniedPrefixes = []string{"write_", "delete_", "deploy_"}

// Cacheable reports whether a namespaced tool name is eligible for
// caching: allow-listed by prefix and not explicitly denied.
func Cacheable(toolName string) bool {
	_, name, ok := splitNamespace(toolName)
	if !ok {
		name = toolName
	}
	if deniedNames[name] {
		return false
	}
	for _, p := range deniedPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	for _, p := range cacheablePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func splitNamespace(name string) (string, string, bool) {
	idx := strings.Index(name, "::")
	if idx < 0 {
		return "", name, false
	}
	return name[:idx], name[idx+2:], true
}

type entry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"maxSize"`
	HitRate float64 `json:"hitRate"`
}

// Cache is a bounded-size, TTL-expiring map from (tool, args) to a
// tool-call result, evicting the oldest insertion when full.
type Cache struct {
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	hits    int64
	misses  int64
}

// New creates a Cache with the given TTL and max entry count. Zero
// values fall back to defaults (2 minutes, 500 entries).
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*entry),
	}
}

// Key builds the cache key for a tool call from its namespaced name and
// raw argument JSON, canonicalizing argument key order so that
// equivalent calls with differently-ordered object keys collide.
func Key(toolName string, args json.RawMessage) string {
	canon := canonicalize(args)
	h := sha256.Sum256(append([]byte(toolName+"\x00"), canon...))
	return hex.EncodeToString(h[:])
}

func canonicalize(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(sortKeys(v))
	if err != nil {
		return raw
	}
	return out
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(t))
		for _, k := range keys {
			ordered[k] = sortKeys(t[k])
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

// Get returns the cached value for key, if present and unexpired. An
// expired entry is dropped and counted as a miss, same as an absent one.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		if ok {
			c.removeLocked(key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the oldest entry if the cache is
// already at capacity.
func (c *Cache) Set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.removeLocked(oldest)
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Sweep drops every expired entry; intended to be called periodically
// rather than only on access, so long-idle entries don't linger forever.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, key := range append([]string(nil), c.order...) {
		if e, ok := c.entries[key]; ok && now.After(e.expiresAt) {
			c.removeLocked(key)
		}
	}
}

// StartSweeper runs Sweep every sweepInterval until stop is closed.
func (c *Cache) StartSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stats returns a snapshot of hit/miss counters and current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		HitRate: rate,
	}
}
