package solver

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/network"
	"fleetsim/internal/routecache"
)

func testGraph(t *testing.T) *network.Graph {
	t.Helper()
	locations := map[string]model.Location{
		"010101": {Ubigeo: "010101", Region: model.RegionCosta},
		"020202": {Ubigeo: "020202", Region: model.RegionCosta},
		"030303": {Ubigeo: "030303", Region: model.RegionCosta},
	}
	edges := []model.Edge{
		{Origin: "010101", Destination: "020202", DistanceKm: 70, TravelHours: 1},
		{Origin: "020202", Destination: "010101", DistanceKm: 70, TravelHours: 1},
		{Origin: "020202", Destination: "030303", DistanceKm: 70, TravelHours: 1},
		{Origin: "030303", Destination: "020202", DistanceKm: 70, TravelHours: 1},
		{Origin: "010101", Destination: "030303", DistanceKm: 210, TravelHours: 3},
	}
	g, err := network.Build(locations, edges)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestGatewayResolvesAndCaches(t *testing.T) {
	g := testGraph(t)
	cache := routecache.New(16)
	gw := NewGateway(g, cache, time.Second)

	pairs := []Pair{{From: "010101", To: "030303"}}
	routes, err := gw.Resolve(context.Background(), pairs, g.Adjacency(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(routes) != 1 || len(routes[0]) != 2 {
		t.Fatalf("routes = %+v, want one 2-segment route via 020202", routes)
	}
	if routes[0][0].To != "020202" || routes[0][1].To != "030303" {
		t.Fatalf("route = %+v", routes[0])
	}
	if routes[0][0].DistanceKm != 70 {
		t.Fatalf("segment distance = %v, want direct-edge 70", routes[0][0].DistanceKm)
	}

	// Second resolution of the same pair must come from the cache.
	if _, err := gw.Resolve(context.Background(), pairs, g.Adjacency(), nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	hits, _ := cache.Stats()
	if hits == 0 {
		t.Fatal("second resolve did not hit the cache")
	}
}

func TestGatewayRoutesAroundBlockedArc(t *testing.T) {
	g := testGraph(t)
	gw := NewGateway(g, routecache.New(16), time.Second)

	working := g.Adjacency().Clone()
	i, _ := g.Index("010101")
	j, _ := g.Index("020202")
	working[i][j] = network.Inf
	working[j][i] = network.Inf

	routes, err := gw.Resolve(context.Background(), []Pair{{From: "010101", To: "030303"}}, working, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(routes[0]) != 1 || routes[0][0].To != "030303" {
		t.Fatalf("route = %+v, want the direct 3h arc", routes[0])
	}
}

func TestGatewayInfeasiblePairLeavesNil(t *testing.T) {
	g := testGraph(t)
	gw := NewGateway(g, routecache.New(16), time.Second)

	working := g.Adjacency().Clone()
	for i := range working {
		for j := range working[i] {
			if i != j {
				working[i][j] = network.Inf
			}
		}
	}
	routes, err := gw.Resolve(context.Background(), []Pair{
		{From: "010101", To: "030303"},
		{From: "999999", To: "030303"},
	}, working, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if routes[0] != nil || routes[1] != nil {
		t.Fatalf("routes = %+v, want nil for infeasible and unknown pairs", routes)
	}
}

func TestGatewayCancelledContext(t *testing.T) {
	g := testGraph(t)
	gw := NewGateway(g, routecache.New(16), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Resolve(ctx, []Pair{{From: "010101", To: "030303"}}, g.Adjacency(), nil); err == nil {
		t.Fatal("cancelled context not propagated")
	}
}

func TestGatewayCountsCacheLookups(t *testing.T) {
	g := testGraph(t)
	gw := NewGateway(g, routecache.New(16), time.Second)

	hit0 := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit"))
	miss0 := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss"))

	pairs := []Pair{{From: "010101", To: "030303"}}
	for i := 0; i < 2; i++ {
		if _, err := gw.Resolve(context.Background(), pairs, g.Adjacency(), nil); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	if d := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")) - miss0; d != 1 {
		t.Fatalf("miss delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")) - hit0; d != 1 {
		t.Fatalf("hit delta = %v, want 1", d)
	}
}
