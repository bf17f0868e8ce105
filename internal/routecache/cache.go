package routecache

import (
	"sync"

	"fleetsim/internal/model"
)

// MaxVersionsPerKey bounds how many blockage-tagged versions one
// origin-destination key retains; the oldest drops first.
const MaxVersionsPerKey = 5

// Version is a cached route plan tagged with the blockage snapshot active
// when it was computed. Versions invalidated by current blockages are
// skipped, never deleted: they may become valid again once the blockage
// expires.
type Version struct {
	Segments  []model.RouteSegment
	Snapshot  []model.Blockage
	TotalMins float64
}

// Cache memoizes point-to-point route plans under directional "from-to"
// keys with LRU eviction of whole keys at capacity. It has its own lock,
// independent of the simulation lock, because concurrent route-resolution
// tasks query it.
type Cache struct {
	mu      sync.Mutex
	maxKeys int
	entries map[string][]Version
	// order is a simple access-order queue: front is least recently used.
	order []string

	hits, misses int64
}

// New creates a cache bounded to maxKeys distinct keys.
func New(maxKeys int) *Cache {
	if maxKeys <= 0 {
		maxKeys = 256
	}
	return &Cache{maxKeys: maxKeys, entries: make(map[string][]Version)}
}

func key(from, to string) string { return from + "-" + to }

// Get returns the best compatible cached route from one point to another, or
// nil on a miss. A forward hit returns the stored segments; a reverse hit
// returns a reversed copy built from the structured segment fields. Hits
// update LRU recency.
func (c *Cache) Get(from, to string, active []model.Blockage) []model.RouteSegment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.best(key(from, to), active); ok {
		c.touch(key(from, to))
		c.hits++
		return append([]model.RouteSegment(nil), v.Segments...)
	}
	if v, ok := c.best(key(to, from), active); ok {
		c.touch(key(to, from))
		c.hits++
		return reverseRoute(v.Segments)
	}
	c.misses++
	return nil
}

// Put appends a version for the key, capping retained versions and evicting
// the least-recently-used key when the key count exceeds capacity.
func (c *Cache) Put(from, to string, segments []model.RouteSegment, active []model.Blockage) {
	if len(segments) == 0 {
		return
	}
	total := 0.0
	for _, s := range segments {
		total += s.DurationMinutes
	}
	v := Version{
		Segments:  append([]model.RouteSegment(nil), segments...),
		Snapshot:  append([]model.Blockage(nil), active...),
		TotalMins: total,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(from, to)
	vs := append(c.entries[k], v)
	if len(vs) > MaxVersionsPerKey {
		vs = vs[len(vs)-MaxVersionsPerKey:]
	}
	c.entries[k] = vs
	c.touch(k)
	for len(c.entries) > c.maxKeys {
		c.evictLRU()
	}
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of distinct keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// best selects the minimum-duration version whose snapshot shares no blocked
// edge with the currently active set.
func (c *Cache) best(k string, active []model.Blockage) (Version, bool) {
	var out Version
	found := false
	for _, v := range c.entries[k] {
		if snapshotConflicts(v.Snapshot, active) {
			continue
		}
		if !found || v.TotalMins < out.TotalMins {
			out = v
			found = true
		}
	}
	return out, found
}

// snapshotConflicts reports whether any edge of the stored snapshot is also
// blocked in the active set. Edges compare undirected: a blockage closes
// both directions.
func snapshotConflicts(snapshot, active []model.Blockage) bool {
	for _, s := range snapshot {
		for _, a := range active {
			if (s.Origin == a.Origin && s.Destination == a.Destination) ||
				(s.Origin == a.Destination && s.Destination == a.Origin) {
				return true
			}
		}
	}
	return false
}

func reverseRoute(segments []model.RouteSegment) []model.RouteSegment {
	out := make([]model.RouteSegment, 0, len(segments))
	for i := len(segments) - 1; i >= 0; i-- {
		out = append(out, segments[i].Reversed())
	}
	return out
}

// touch moves k to the back of the access-order queue.
func (c *Cache) touch(k string) {
	for i, v := range c.order {
		if v == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, k)
}

func (c *Cache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	k := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, k)
}
