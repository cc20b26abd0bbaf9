package routing

import (
	"sync"

	"github.com/thermasched/thermasched/core"
)

// routeCache implements the (src,dst) → (route, congestion_version)
// cache from spec.md §4.2. A single version counter stands in for the
// "per-link congestion version" — any congestion or topology change
// bumps it, and every cached entry from an older version is treated as
// stale and recomputed lazily by the reader (Engine.Route), never
// eagerly by the writer. This mirrors the route-cache mutex + version
// counter discipline of spec.md §5.
type routeCache struct {
	mu      sync.Mutex
	version uint64
	entries map[routeKey]cachedRoute
}

type routeKey struct {
	src, dst core.DeviceHandle
}

type cachedRoute struct {
	route   core.Route
	version uint64
}

func newRouteCache() *routeCache {
	return &routeCache{entries: make(map[routeKey]cachedRoute)}
}

func (c *routeCache) get(src, dst core.DeviceHandle) (core.Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[routeKey{src, dst}]
	if !ok || e.version != c.version {
		return core.Route{}, false
	}
	return e.route, true
}

func (c *routeCache) put(src, dst core.DeviceHandle, r core.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[routeKey{src, dst}] = cachedRoute{route: r, version: c.version}
}

func (c *routeCache) bumpVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
}
