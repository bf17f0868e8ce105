package blockage

import (
	"testing"
	"time"

	"fleetsim/internal/model"
	"fleetsim/internal/network"
)

func testGraph(t *testing.T) *network.Graph {
	t.Helper()
	locations := map[string]model.Location{
		"010101": {Ubigeo: "010101", Region: model.RegionCosta},
		"020202": {Ubigeo: "020202", Region: model.RegionCosta},
	}
	edges := []model.Edge{
		{Origin: "010101", Destination: "020202", TravelHours: 1},
		{Origin: "020202", Destination: "010101", TravelHours: 1},
	}
	g, err := network.Build(locations, edges)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestRegistryProjectsActiveBlockages(t *testing.T) {
	g := testGraph(t)
	start := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(g, []model.Blockage{
		{Origin: "010101", Destination: "020202", Start: start, End: start.Add(2 * time.Hour)},
	})
	i, _ := g.Index("010101")
	j, _ := g.Index("020202")

	// Before the window the matrix is the static one.
	active, m := r.Update(start.Add(-time.Minute))
	if len(active) != 0 {
		t.Fatalf("active = %d before window, want 0", len(active))
	}
	if m[i][j] != 60 {
		t.Fatalf("m[i][j] = %v before window, want 60", m[i][j])
	}

	// Inside the window both directions go unreachable.
	active, m = r.Update(start)
	if len(active) != 1 {
		t.Fatalf("active = %d inside window, want 1", len(active))
	}
	if m[i][j] != network.Inf || m[j][i] != network.Inf {
		t.Fatalf("blocked entries = %v,%v, want Inf both ways", m[i][j], m[j][i])
	}

	// The interval is half-open: at End the edge reopens.
	active, m = r.Update(start.Add(2 * time.Hour))
	if len(active) != 0 {
		t.Fatalf("active = %d at window end, want 0", len(active))
	}
	if m[i][j] != 60 {
		t.Fatalf("m[i][j] = %v after expiry, want 60 restored", m[i][j])
	}
}

func TestRegistrySkipsUnknownUbigeo(t *testing.T) {
	g := testGraph(t)
	start := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(g, []model.Blockage{
		{Origin: "999999", Destination: "020202", Start: start, End: start.Add(time.Hour)},
	})
	active, m := r.Update(start)
	// The blockage stays in the active list but cannot touch the matrix.
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	i, _ := g.Index("010101")
	j, _ := g.Index("020202")
	if m[i][j] != 60 {
		t.Fatalf("matrix changed by unknown-ubigeo blockage: %v", m[i][j])
	}
}

func TestRegistryAccessorsCopy(t *testing.T) {
	g := testGraph(t)
	start := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(g, []model.Blockage{
		{Origin: "010101", Destination: "020202", Start: start, End: start.Add(time.Hour)},
	})
	r.Update(start)
	a := r.Active()
	if len(a) != 1 {
		t.Fatalf("Active() = %d, want 1", len(a))
	}
	a[0].Origin = "mutated"
	if r.Active()[0].Origin != "010101" {
		t.Fatal("Active() returned shared slice")
	}
}
