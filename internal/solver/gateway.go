package solver

import (
	"context"
	"errors"
	"log"
	"time"

	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/network"
	"fleetsim/internal/routecache"
)

// ErrNoSolution signals that the solver found no feasible route for a pair.
var ErrNoSolution = errors.New("no solution")

// Pair is one point-to-point route request.
type Pair struct {
	From string
	To   string
}

// Gateway is the stateless boundary between the engine and the solver. It
// resolves pairs cache-first, batches the misses into a single solver call
// over the working matrix, fans the answer back out by position, and stores
// fresh results in the cache.
type Gateway struct {
	Graph  *network.Graph
	Cache  *routecache.Cache
	Budget time.Duration
}

// NewGateway wires a gateway over the shared graph and route cache.
func NewGateway(g *network.Graph, c *routecache.Cache, budget time.Duration) *Gateway {
	if budget <= 0 {
		budget = 2 * time.Second
	}
	return &Gateway{Graph: g, Cache: c, Budget: budget}
}

// Resolve returns one route per pair, in request order. A pair the solver
// cannot satisfy yields a nil slice at its position; the caller retries in a
// later planning cycle. Context cancellation abandons the whole batch.
func (gw *Gateway) Resolve(ctx context.Context, pairs []Pair, working network.Matrix, active []model.Blockage) ([][]model.RouteSegment, error) {
	out := make([][]model.RouteSegment, len(pairs))

	var missIdx []int
	var specs []VehicleSpec
	for i, pr := range pairs {
		if segs := gw.Cache.Get(pr.From, pr.To, active); segs != nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			out[i] = segs
			continue
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		fi, ok := gw.Graph.Index(pr.From)
		if !ok {
			log.Printf("gateway: unknown origin %s, pair skipped", pr.From)
			continue
		}
		ti, ok := gw.Graph.Index(pr.To)
		if !ok {
			log.Printf("gateway: unknown destination %s, pair skipped", pr.To)
			continue
		}
		missIdx = append(missIdx, i)
		specs = append(specs, VehicleSpec{Start: fi, End: ti})
	}
	if len(specs) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sol, met := Solve(Problem{
		N:        gw.Graph.Size(),
		Matrix:   working,
		Vehicles: specs,
	}, gw.Budget)
	if met.Infeasible > 0 {
		log.Printf("gateway: %d of %d pairs infeasible (expanded=%d elapsed=%s)",
			met.Infeasible, len(specs), met.Expanded, met.Elapsed)
	}

	for pi, plan := range sol.Plans {
		if !plan.Feasible {
			continue
		}
		out[missIdx[pi]] = gw.segments(plan.Hops)
		pr := pairs[missIdx[pi]]
		gw.Cache.Put(pr.From, pr.To, out[missIdx[pi]], active)
	}
	return out, nil
}

// segments converts index-space hops into route segments with display names
// and distances taken from the direct edge where one exists.
func (gw *Gateway) segments(hops []Hop) []model.RouteSegment {
	segs := make([]model.RouteSegment, 0, len(hops))
	for _, h := range hops {
		from := gw.Graph.Code(h.From)
		to := gw.Graph.Code(h.To)
		dist := 0.0
		if e, ok := gw.Graph.EdgeBetween(from, to); ok {
			dist = e.DistanceKm
		} else {
			// Closure arc with no direct edge: estimate from time at the
			// fallback speed.
			dist = h.Minutes / 60 * SpeedFallbackKph
		}
		segs = append(segs, model.RouteSegment{
			From:            from,
			To:              to,
			DisplayName:     from + " to " + to,
			DistanceKm:      dist,
			DurationMinutes: h.Minutes,
		})
	}
	return segs
}

// SpeedFallbackKph estimates distance for arcs without a direct edge.
const SpeedFallbackKph = 50.0
