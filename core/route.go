package core

// Route is the derived result of a shortest-path query between two
// devices (spec.md §3). Cached by (src,dst) and invalidated whenever a
// link's congestion or topology changes.
type Route struct {
	Path              []DeviceHandle // ordered source-to-destination
	LatencyUs         float64        // aggregate (sum)
	BandwidthGbps     float64        // bottleneck (min across hops)
	CostPerSecond     float64        // aggregate (sum)
	CongestionFactor  float64        // multiplicative (product of per-link factors, >= 1)
}

// Hops returns the number of edges in the route.
func (r Route) Hops() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// EffectiveBandwidthBytesPerSec converts the route's bottleneck
// bandwidth (Gbps) to bytes/sec for transfer-time calculations
// (spec.md §4.5's transfer_ms formula).
func (r Route) EffectiveBandwidthBytesPerSec() float64 {
	const gbpsToBytesPerSec = 1e9 / 8.0
	return r.BandwidthGbps * gbpsToBytesPerSec
}

// ZeroHopRoute is the Degenerate result for src == dst (spec.md §4.2).
func ZeroHopRoute(d DeviceHandle) Route {
	return Route{
		Path:             []DeviceHandle{d},
		LatencyUs:        0,
		BandwidthGbps:    0,
		CostPerSecond:    0,
		CongestionFactor: 1.0,
	}
}
