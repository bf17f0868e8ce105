package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetsim/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testLocations(t *testing.T) map[string]model.Location {
	t.Helper()
	path := writeFile(t, "locations.txt", `# ubigeo,name,lat,lng,region,capacity
010101,Lima,-12.04,-77.03,COSTA,500
080801,Cusco,-13.53,-71.97,SIERRA,200
160101,Iquitos,-3.75,-73.25,SELVA,150
`)
	locations, rep, err := Locations(path)
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if rep.Parsed != 3 || rep.Skipped != 0 {
		t.Fatalf("report = %+v", rep)
	}
	return locations
}

func TestLocations(t *testing.T) {
	locations := testLocations(t)
	lima, ok := locations["010101"]
	if !ok {
		t.Fatal("missing 010101")
	}
	if lima.Region != model.RegionCosta || lima.WarehouseCapacity != 500 {
		t.Fatalf("lima = %+v", lima)
	}
}

func TestLocationsSkipsMalformed(t *testing.T) {
	path := writeFile(t, "locations.txt", `010101,Lima,-12.04,-77.03,COSTA,500
020202,Nowhere,-1,-1,MARTE,10
030303,Short,1
`)
	locations, rep, err := Locations(path)
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if len(locations) != 1 || rep.Skipped != 2 {
		t.Fatalf("locations = %d skipped = %d, want 1/2", len(locations), rep.Skipped)
	}
}

func TestEdges(t *testing.T) {
	locations := testLocations(t)
	path := writeFile(t, "edges.txt", `010101 => 080801, 560
080801 => 160101, 900
010101 => 999999, 100
010101 => 080801, -5
`)
	edges, rep, err := Edges(path, locations)
	if err != nil {
		t.Fatalf("Edges: %v", err)
	}
	if len(edges) != 2 || rep.Skipped != 2 {
		t.Fatalf("edges = %d skipped = %d, want 2/2", len(edges), rep.Skipped)
	}
	if edges[0].Origin != "010101" || edges[0].Destination != "080801" || edges[0].DistanceKm != 560 {
		t.Fatalf("edge = %+v", edges[0])
	}
}

func TestVehicles(t *testing.T) {
	locations := testLocations(t)
	path := writeFile(t, "vehicles.txt", `A001,90,010101
B002,45,080801
C003,30,999999
`)
	specs, rep, err := Vehicles(path, locations)
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if len(specs) != 2 || rep.Skipped != 1 {
		t.Fatalf("specs = %d skipped = %d", len(specs), rep.Skipped)
	}
	if specs[0].Code != "A001" || specs[0].Capacity != 90 || specs[0].Home != "010101" {
		t.Fatalf("spec = %+v", specs[0])
	}
}

func TestOrders(t *testing.T) {
	locations := testLocations(t)
	base := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, "orders.txt", `03 14 30, 010101 => 080801, 25, CLI001
05 09 00, 010101 => 160101, 10, CLI002
99,bad
`)
	orders, rep, err := Orders(path, locations, base)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 2 || rep.Skipped != 1 {
		t.Fatalf("orders = %d skipped = %d", len(orders), rep.Skipped)
	}

	o := orders[0]
	wantTime := time.Date(2026, 6, 3, 14, 30, 0, 0, time.UTC)
	if !o.OrderTime.Equal(wantTime) {
		t.Fatalf("order time = %v, want %v", o.OrderTime, wantTime)
	}
	// Destination in SIERRA: 48h promise.
	if !o.DueTime.Equal(wantTime.Add(48 * time.Hour)) {
		t.Fatalf("due time = %v", o.DueTime)
	}
	if o.Quantity != 25 || o.ClientID != "CLI001" || o.Status != model.OrderRegistered {
		t.Fatalf("order = %+v", o)
	}
	// SELVA destination: 72h promise.
	if !orders[1].DueTime.Equal(orders[1].OrderTime.Add(72 * time.Hour)) {
		t.Fatalf("selva due time = %v", orders[1].DueTime)
	}
}

func TestBlockages(t *testing.T) {
	locations := testLocations(t)
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, "blockages.txt", `010101-080801;0610,08:00==0612,20:00
010101-080801;0620,10:00==0619,10:00
`)
	blocks, rep, err := Blockages(path, locations, base)
	if err != nil {
		t.Fatalf("Blockages: %v", err)
	}
	if len(blocks) != 1 || rep.Skipped != 1 {
		t.Fatalf("blocks = %d skipped = %d", len(blocks), rep.Skipped)
	}
	b := blocks[0]
	if !b.Start.Equal(time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", b.Start)
	}
	if !b.End.Equal(time.Date(2026, 6, 12, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", b.End)
	}
}

func TestMaintenance(t *testing.T) {
	path := writeFile(t, "maintenance.txt", `A001:20260610,08:00==20260611,08:00
B002:garbage
`)
	wins, rep, err := Maintenance(path)
	if err != nil {
		t.Fatalf("Maintenance: %v", err)
	}
	if len(wins) != 1 || rep.Skipped != 1 {
		t.Fatalf("windows = %d skipped = %d", len(wins), rep.Skipped)
	}
	w := wins[0]
	if w.VehicleCode != "A001" || !w.End.Equal(w.Start.Add(24*time.Hour)) {
		t.Fatalf("window = %+v", w)
	}
}

func TestMissingFile(t *testing.T) {
	if _, _, err := Locations(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("missing file not reported")
	}
}
