package bright

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/config"
)

// Cache memoizes parsed programs by configuration and source. Programs are immutable
// once parsed, so one entry may back any number of units.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	hits    int
	misses  int
}

type cacheEntry struct {
	prog *ast.Program
	cfg  *config.Config
}

func NewCache() *Cache { return &Cache{entries: make(map[uint64]cacheEntry)} }

func cacheKey(cfg *config.Config, source string) uint64 {
	h := xxhash.New()
	h.WriteString(cfg.Fingerprint())
	h.WriteString("\x00")
	h.WriteString(source)
	return h.Sum64()
}

func (c *Cache) get(cfg *config.Config, source string) (cacheEntry, bool) {
	key := cacheKey(cfg, source)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

func (c *Cache) put(cfg *config.Config, source string, prog *ast.Program, effective *config.Config) {
	key := cacheKey(cfg, source)
	c.mu.Lock()
	c.entries[key] = cacheEntry{prog: prog, cfg: effective}
	c.mu.Unlock()
}

// Stats reports lookups served from and missed by the cache.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
