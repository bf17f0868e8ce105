package blockage

import (
	"log"
	"sync"
	"time"

	"fleetsim/internal/model"
	"fleetsim/internal/network"
)

// Registry tracks scheduled road closures and projects the active subset
// onto a working copy of the static time matrix.
type Registry struct {
	mu     sync.Mutex
	graph  *network.Graph
	all    []model.Blockage
	active []model.Blockage
	// working is rebuilt in full on every Update; incremental patching
	// would leave stale entries behind when blockages expire.
	working network.Matrix
}

// NewRegistry creates a registry over the loaded blockage schedule. The
// working matrix derives from the adjacency matrix, not the closure: masking
// a direct arc there blocks through-traffic too, because the solver has to
// find an actual detour.
func NewRegistry(g *network.Graph, all []model.Blockage) *Registry {
	return &Registry{graph: g, all: all, working: g.Adjacency().Clone()}
}

// Update recomputes the active set for now and rebuilds the working matrix:
// expired blockages drop out, newly started ones come in, and every active
// blockage marks both directed entries unreachable. A blockage referencing
// an unknown ubigeo is logged and skipped, never fatal.
func (r *Registry) Update(now time.Time) ([]model.Blockage, network.Matrix) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.active[:0]
	for _, b := range r.all {
		if b.ActiveAt(now) {
			active = append(active, b)
		}
	}
	r.active = active

	m := r.graph.Adjacency().Clone()
	for _, b := range r.active {
		oi, ok := r.graph.Index(b.Origin)
		if !ok {
			log.Printf("blockage %s-%s: unknown origin, skipped", b.Origin, b.Destination)
			continue
		}
		di, ok := r.graph.Index(b.Destination)
		if !ok {
			log.Printf("blockage %s-%s: unknown destination, skipped", b.Origin, b.Destination)
			continue
		}
		m[oi][di] = network.Inf
		m[di][oi] = network.Inf
	}
	r.working = m

	out := append([]model.Blockage(nil), r.active...)
	return out, m
}

// Active returns a copy of the active set from the last Update.
func (r *Registry) Active() []model.Blockage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Blockage(nil), r.active...)
}

// Working returns the matrix from the last Update. The matrix is shared
// read-only with the optimizer gateway for the current planning cycle.
func (r *Registry) Working() network.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.working
}
