package network

import (
	"fmt"
	"sort"

	"fleetsim/internal/model"
)

// Inf is the sentinel travel time (minutes) for unreachable pairs.
const Inf = float64(1 << 30)

// regionSpeeds maps an origin/destination region pair to an average speed in
// km/h, used to derive edge travel times from distances.
var regionSpeeds = map[[2]string]float64{
	{model.RegionCosta, model.RegionCosta}:   70,
	{model.RegionCosta, model.RegionSierra}:  50,
	{model.RegionSierra, model.RegionCosta}:  50,
	{model.RegionSierra, model.RegionSierra}: 60,
	{model.RegionSierra, model.RegionSelva}:  55,
	{model.RegionSelva, model.RegionSierra}:  55,
	{model.RegionSelva, model.RegionSelva}:   65,
	{model.RegionCosta, model.RegionSelva}:   60,
	{model.RegionSelva, model.RegionCosta}:   60,
}

// SpeedFor returns the average speed for a region pair, with a conservative
// fallback for unknown regions.
func SpeedFor(originRegion, destRegion string) float64 {
	if v, ok := regionSpeeds[[2]string{originRegion, destRegion}]; ok {
		return v
	}
	return 50
}

// Graph is the static road network: locations, edges, and the all-pairs
// shortest travel-time matrix in minutes. Immutable after Build.
type Graph struct {
	Locations map[string]model.Location
	Edges     []model.Edge

	index map[string]int
	codes []string
	// adjacency holds direct-edge travel times only; matrix is its
	// Floyd-Warshall closure.
	adjacency Matrix
	matrix    Matrix
}

// Matrix is an N×N travel-time matrix in minutes.
type Matrix [][]float64

// Clone returns a deep copy, used as the working matrix a blockage set is
// projected onto.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

// Build constructs the graph and runs the Floyd-Warshall closure over the
// known edges. Edge travel times derive from distance and the region-pair
// speed table.
func Build(locations map[string]model.Location, edges []model.Edge) (*Graph, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("network: no locations")
	}
	g := &Graph{
		Locations: locations,
		index:     make(map[string]int, len(locations)),
	}
	// Deterministic index order keeps matrices comparable across runs.
	g.codes = make([]string, 0, len(locations))
	for code := range locations {
		g.codes = append(g.codes, code)
	}
	sort.Strings(g.codes)
	for i, code := range g.codes {
		g.index[code] = i
	}

	n := len(g.codes)
	g.matrix = make(Matrix, n)
	for i := range g.matrix {
		g.matrix[i] = make([]float64, n)
		for j := range g.matrix[i] {
			if i != j {
				g.matrix[i][j] = Inf
			}
		}
	}
	for _, e := range edges {
		oi, ok := g.index[e.Origin]
		if !ok {
			return nil, fmt.Errorf("network: edge origin %s unknown", e.Origin)
		}
		di, ok := g.index[e.Destination]
		if !ok {
			return nil, fmt.Errorf("network: edge destination %s unknown", e.Destination)
		}
		hours := e.TravelHours
		if hours <= 0 {
			speed := SpeedFor(locations[e.Origin].Region, locations[e.Destination].Region)
			hours = e.DistanceKm / speed
			e.TravelHours = hours
		}
		minutes := hours * 60
		if minutes < g.matrix[oi][di] {
			g.matrix[oi][di] = minutes
		}
		g.Edges = append(g.Edges, e)
	}
	g.adjacency = g.matrix.Clone()
	// Floyd-Warshall closure.
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if g.matrix[i][k] >= Inf {
				continue
			}
			for j := 0; j < n; j++ {
				if d := g.matrix[i][k] + g.matrix[k][j]; d < g.matrix[i][j] {
					g.matrix[i][j] = d
				}
			}
		}
	}
	return g, nil
}

// StaticMatrix returns the blockage-free all-pairs matrix. Callers must
// Clone before mutating.
func (g *Graph) StaticMatrix() Matrix { return g.matrix }

// Adjacency returns the direct-edge matrix the route solver searches over.
// Unlike the closure, masking an entry here actually closes the road.
// Callers must Clone before mutating.
func (g *Graph) Adjacency() Matrix { return g.adjacency }

// Index returns the matrix index for a ubigeo.
func (g *Graph) Index(ubigeo string) (int, bool) {
	i, ok := g.index[ubigeo]
	return i, ok
}

// Code returns the ubigeo at a matrix index.
func (g *Graph) Code(i int) string { return g.codes[i] }

// Size returns the node count.
func (g *Graph) Size() int { return len(g.codes) }

// TravelMinutes returns the static shortest travel time between two ubigeos.
func (g *Graph) TravelMinutes(from, to string) (float64, bool) {
	fi, ok := g.index[from]
	if !ok {
		return 0, false
	}
	ti, ok := g.index[to]
	if !ok {
		return 0, false
	}
	d := g.matrix[fi][ti]
	if d >= Inf {
		return 0, false
	}
	return d, true
}

// EdgeBetween returns the direct edge between two ubigeos, if one exists.
func (g *Graph) EdgeBetween(from, to string) (model.Edge, bool) {
	for _, e := range g.Edges {
		if e.Origin == from && e.Destination == to {
			return e, true
		}
	}
	return model.Edge{}, false
}
