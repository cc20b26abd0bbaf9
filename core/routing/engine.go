// Package routing implements the Routing Engine (spec.md §4.2):
// single-source shortest path over the device interconnect graph, a
// route cache invalidated by congestion changes, and the five
// objective-to-edge-weight mappings.
//
// Grounded on sim/routing.go's RoutingPolicy interface and
// NewRoutingPolicy factory-by-name pattern (panic on unrecognized
// name, used here only at construction for a caller-supplied
// Objective/Algorithm that has already passed Config.Validate).
// The shortest-path algorithm itself is delegated to
// gonum.org/v1/gonum/graph — already an indirect dependency of the
// teacher's go.mod (pulled transitively via llm-inferno/queue-analysis
// and llm-inferno/kalman-filter) — since this is the one component in
// the corpus actually shaped like a graph-shortest-path problem.
package routing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/thermasched/thermasched/core"
)

// DeviceGraph is a read-only view over the device topology the engine
// needs: every device and its outgoing links. core/registry.Registry
// satisfies this via Iter().
type DeviceGraph interface {
	Iter() []core.Device
}

// Engine answers single-source shortest-path queries with a cached,
// congestion-versioned route table.
type Engine struct {
	graph     DeviceGraph
	objective core.Objective
	algorithm core.Algorithm
	weights   core.ObjectiveWeights
	cache     *routeCache
}

// New constructs an Engine over graph using cfg's objective/algorithm.
// Panics on an invalid objective/algorithm, matching the teacher's
// NewRoutingPolicy factory — callers are expected to have already run
// Config.Validate, which is where a bad value should be surfaced to
// an end user.
func New(g DeviceGraph, cfg core.Config) *Engine {
	if !core.IsValidObjective(cfg.Objective) {
		panic(fmt.Sprintf("routing: unknown objective %q", cfg.Objective))
	}
	if !core.IsValidAlgorithm(cfg.Algorithm) {
		panic(fmt.Sprintf("routing: unknown algorithm %q", cfg.Algorithm))
	}
	return &Engine{
		graph:     g,
		objective: cfg.Objective,
		algorithm: cfg.Algorithm,
		weights:   cfg.Weights,
		cache:     newRouteCache(),
	}
}

// nodeIndex assigns stable int64 node IDs to device handles for one
// query — gonum's graph.Node requires an int64 ID, devices are
// identified by string handles, so the engine builds this mapping each
// time it builds a gonum graph from the current device snapshot.
type nodeIndex struct {
	toID     map[core.DeviceHandle]int64
	toHandle map[int64]core.DeviceHandle
}

func buildNodeIndex(devices []core.Device) *nodeIndex {
	// Sort by handle for deterministic ID assignment — required for the
	// "tie-break on fewer hops then lower device id" rule in spec.md §4.2.
	sorted := make([]core.Device, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Handle < sorted[j].Handle })

	idx := &nodeIndex{
		toID:     make(map[core.DeviceHandle]int64, len(sorted)),
		toHandle: make(map[int64]core.DeviceHandle, len(sorted)),
	}
	for i, d := range sorted {
		idx.toID[d.Handle] = int64(i)
		idx.toHandle[int64(i)] = d.Handle
	}
	return idx
}

// edgeWeight computes the weight of a single link under the engine's
// configured objective (spec.md §4.2's table).
func (e *Engine) edgeWeight(link core.Link, dst core.Device) float64 {
	switch e.objective {
	case core.ObjectiveLatency:
		return link.EffectiveLatencyUs()
	case core.ObjectivePower:
		return dst.Live.PowerWatts
	case core.ObjectiveCost:
		return link.CostPerSecond
	case core.ObjectiveThroughput:
		if link.BandwidthGbps <= 0 {
			return maxWeight
		}
		return 1.0 / link.BandwidthGbps
	case core.ObjectiveBalanced:
		return e.weights.Alpha*link.EffectiveLatencyUs() +
			e.weights.Beta*dst.Live.PowerWatts +
			e.weights.Gamma*link.CostPerSecond
	default:
		return link.EffectiveLatencyUs()
	}
}

// maxWeight stands in for "infinite" edge weight (e.g. zero bandwidth)
// without using math.Inf, which gonum's Dijkstra implementation does
// not handle uniformly across all edges.
const maxWeight = 1e18

// Route computes the minimum-weight path from src to dst under the
// engine's configured objective. Returns Degenerate's zero-cost route
// when src == dst, Unreachable if no path exists.
func (e *Engine) Route(src, dst core.DeviceHandle) (core.Route, *core.CoreError) {
	if src == dst {
		return core.ZeroHopRoute(src), nil
	}

	if r, ok := e.cache.get(src, dst); ok {
		return r, nil
	}

	devices := e.graph.Iter()
	idx := buildNodeIndex(devices)
	byHandle := make(map[core.DeviceHandle]core.Device, len(devices))
	for _, d := range devices {
		byHandle[d.Handle] = d
	}

	srcID, ok := idx.toID[src]
	if !ok {
		return core.Route{}, core.NewDeviceError(core.KindUnreachable, src, "source device unknown")
	}
	if _, ok := idx.toID[dst]; !ok {
		return core.Route{}, core.NewDeviceError(core.KindUnreachable, dst, "destination device unknown")
	}

	g := simple.NewWeightedDirectedGraph(0, maxWeight)
	for _, d := range devices {
		g.AddNode(simple.Node(idx.toID[d.Handle]))
	}
	for _, d := range devices {
		for _, link := range d.Links {
			toDev, ok := byHandle[link.To]
			if !ok {
				continue
			}
			w := e.edgeWeight(link, toDev)
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(idx.toID[d.Handle]),
				T: simple.Node(idx.toID[link.To]),
				W: w,
			})
		}
	}

	var shortest path.Shortest
	if e.algorithm == core.AlgorithmAStar {
		shortest, _ = path.AStar(simple.Node(srcID), simple.Node(idx.toID[dst]), g, nil)
	} else {
		shortest = path.DijkstraFrom(simple.Node(srcID), g)
	}

	nodes, weight := shortest.To(idx.toID[dst])
	if len(nodes) == 0 {
		return core.Route{}, core.NewDeviceError(core.KindUnreachable, dst, "no path from source")
	}

	route := e.buildRoute(nodes, idx, byHandle, weight)
	e.cache.put(src, dst, route)
	return route, nil
}

// buildRoute walks the resolved node path and aggregates latency (sum),
// bandwidth (min), cost (sum), congestion (product) per spec.md §4.2.
func (e *Engine) buildRoute(nodes []graph.Node, idx *nodeIndex, byHandle map[core.DeviceHandle]core.Device, weight float64) core.Route {
	path := make([]core.DeviceHandle, len(nodes))
	for i, n := range nodes {
		path[i] = idx.toHandle[n.ID()]
	}

	var latency, cost, congestion float64
	bandwidth := maxWeight
	congestion = 1.0
	for i := 0; i+1 < len(path); i++ {
		from := byHandle[path[i]]
		for _, link := range from.Links {
			if link.To != path[i+1] {
				continue
			}
			latency += link.EffectiveLatencyUs()
			cost += link.CostPerSecond
			if link.BandwidthGbps < bandwidth {
				bandwidth = link.BandwidthGbps
			}
			factor := link.CongestionFactor
			if factor < 1.0 {
				factor = 1.0
			}
			congestion *= factor
			break
		}
	}
	if bandwidth == maxWeight {
		bandwidth = 0
	}
	return core.Route{
		Path:             path,
		LatencyUs:        latency,
		BandwidthGbps:    bandwidth,
		CostPerSecond:    cost,
		CongestionFactor: congestion,
	}
}

// InvalidateLink bumps the route cache's congestion version, causing
// any cached route to be recomputed lazily on next read (spec.md
// §4.2: "routes computed against an older version are recomputed
// lazily").
func (e *Engine) InvalidateLink() {
	e.cache.bumpVersion()
}
