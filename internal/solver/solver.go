package solver

import (
	"container/heap"
	"time"

	"fleetsim/internal/network"
)

// VehicleSpec is one vehicle's start/end node pair in matrix index space.
type VehicleSpec struct {
	Start int
	End   int
}

// Problem is the solver input: an N×N minutes matrix (network.Inf marks
// unreachable arcs), the vehicles to route, and optional soft nodes that the
// search is encouraged, but never forced, to visit.
type Problem struct {
	N        int
	Matrix   network.Matrix
	Vehicles []VehicleSpec
	// SoftNodes get a small arc-cost discount so routes prefer passing
	// through them when the detour is cheap. Infeasibility is never
	// introduced on their account.
	SoftNodes []int
	// SoftBonusMins is the per-visit discount; defaults to 5.
	SoftBonusMins float64
	// Objectives weights: "span" (per-vehicle makespan) and "total".
	Objectives map[string]float64
}

// Hop is one node-to-node step with cumulative minutes from the start.
type Hop struct {
	From    int
	To      int
	Minutes float64
	CumMins float64
}

// VehiclePlan is the ordered hop sequence for one vehicle. A nil Hops slice
// with Feasible false signals no solution for that vehicle.
type VehiclePlan struct {
	Hops     []Hop
	Feasible bool
}

// Solution is the per-vehicle fan-out plus the combined objective value.
type Solution struct {
	Plans []VehiclePlan
	Cost  float64
}

// Metrics reports search effort for the run.
type Metrics struct {
	Expanded    int
	SoftVisited int
	Infeasible  int
	Elapsed     time.Duration
}

// Solve routes every vehicle from its start to its end node over the matrix
// within the time budget. Vehicles whose end is unreachable (or that the
// budget cuts off) come back infeasible; the caller decides whether a
// partial answer is usable.
func Solve(p Problem, budget time.Duration) (Solution, Metrics) {
	start := time.Now()
	bonus := p.SoftBonusMins
	if bonus <= 0 {
		bonus = 5
	}
	soft := make(map[int]bool, len(p.SoftNodes))
	for _, n := range p.SoftNodes {
		soft[n] = true
	}

	deadline := start.Add(budget)
	var m Metrics
	sol := Solution{Plans: make([]VehiclePlan, len(p.Vehicles))}
	wSpan := p.Objectives["span"]
	if wSpan == 0 {
		wSpan = 1
	}
	wTotal := p.Objectives["total"]
	if wTotal == 0 {
		wTotal = 1
	}

	span := 0.0
	total := 0.0
	for vi, v := range p.Vehicles {
		if budget > 0 && time.Now().After(deadline) {
			m.Infeasible++
			continue
		}
		hops, expanded := shortestHops(p, v.Start, v.End, soft, bonus)
		m.Expanded += expanded
		if hops == nil {
			m.Infeasible++
			continue
		}
		for _, h := range hops {
			if soft[h.To] {
				m.SoftVisited++
			}
		}
		sol.Plans[vi] = VehiclePlan{Hops: hops, Feasible: true}
		dur := 0.0
		if len(hops) > 0 {
			dur = hops[len(hops)-1].CumMins
		}
		total += dur
		if dur > span {
			span = dur
		}
	}
	sol.Cost = wSpan*span + wTotal*total
	m.Elapsed = time.Since(start)
	return sol, m
}

// shortestHops runs Dijkstra over the finite matrix arcs with the soft-node
// discount applied to arc costs. Reported hop minutes stay undiscounted so
// cumulative times remain real travel times.
func shortestHops(p Problem, start, end int, soft map[int]bool, bonus float64) ([]Hop, int) {
	if start < 0 || end < 0 || start >= p.N || end >= p.N {
		return nil, 0
	}
	if start == end {
		return []Hop{}, 0
	}
	dist := make([]float64, p.N)
	prev := make([]int, p.N)
	done := make([]bool, p.N)
	for i := range dist {
		dist[i] = network.Inf
		prev[i] = -1
	}
	dist[start] = 0

	pq := &nodeHeap{{node: start, cost: 0}}
	expanded := 0
	for pq.Len() > 0 {
		it := heap.Pop(pq).(nodeItem)
		if done[it.node] {
			continue
		}
		done[it.node] = true
		expanded++
		if it.node == end {
			break
		}
		for j := 0; j < p.N; j++ {
			w := p.Matrix[it.node][j]
			if j == it.node || w >= network.Inf || done[j] {
				continue
			}
			cost := w
			if soft[j] && j != end {
				cost -= bonus
				if cost < 1 {
					cost = 1
				}
			}
			if d := dist[it.node] + cost; d < dist[j] {
				dist[j] = d
				prev[j] = it.node
				heap.Push(pq, nodeItem{node: j, cost: d})
			}
		}
	}
	if prev[end] == -1 {
		return nil, expanded
	}
	// Reconstruct and annotate with real (undiscounted) minutes.
	path := []int{end}
	for n := end; n != start; n = prev[n] {
		path = append(path, prev[n])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	hops := make([]Hop, 0, len(path)-1)
	cum := 0.0
	for i := 0; i+1 < len(path); i++ {
		mins := p.Matrix[path[i]][path[i+1]]
		cum += mins
		hops = append(hops, Hop{From: path[i], To: path[i+1], Minutes: mins, CumMins: cum})
	}
	return hops, expanded
}

type nodeItem struct {
	node int
	cost float64
}

type nodeHeap []nodeItem

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].cost < h[j].cost }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(nodeItem)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
