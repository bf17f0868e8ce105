package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetsim/internal/archive"
	"fleetsim/internal/assign"
	"fleetsim/internal/blockage"
	"fleetsim/internal/config"
	"fleetsim/internal/fleet"
	"fleetsim/internal/model"
	"fleetsim/internal/network"
	"fleetsim/internal/routecache"
	"fleetsim/internal/solver"
	"fleetsim/internal/warehouse"
)

var simStart = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type world struct {
	engine  *Engine
	cfg     config.Config
	vehicle *fleet.Vehicle
	order   *model.Order
}

// newWorld builds a two-city world: a vehicle and an order at 010101, the
// order's destination warehouse at 030303, one hour apart each way.
func newWorld(t *testing.T, blockages []model.Blockage) *world {
	t.Helper()
	locations := map[string]model.Location{
		"010101": {Ubigeo: "010101", Region: model.RegionCosta, Lat: 0, Lng: 0, WarehouseCapacity: 100},
		"030303": {Ubigeo: "030303", Region: model.RegionCosta, Lat: 1, Lng: 1, WarehouseCapacity: 50},
	}
	edges := []model.Edge{
		{Origin: "010101", Destination: "030303", DistanceKm: 70, TravelHours: 1},
		{Origin: "030303", Destination: "010101", DistanceKm: 70, TravelHours: 1},
	}
	g, err := network.Build(locations, edges)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg := config.Default()
	cfg.Clock.Start = simStart.Format(time.RFC3339)
	cfg.Clock.TickMinutes = 5

	v := fleet.NewVehicle("V01", 10, "010101")
	o := &model.Order{
		ID: "o1", Origin: "010101", Destination: "030303",
		Quantity: 5, OrderTime: simStart, DueTime: simStart.Add(24 * time.Hour),
		Status: model.OrderRegistered,
	}

	reg := blockage.NewRegistry(g, blockages)
	led := warehouse.NewLedger(locations)
	gw := solver.NewGateway(g, routecache.New(16), time.Second)
	e := NewEngine(cfg, g, reg, led, gw, archive.NewMemory(), []*fleet.Vehicle{v}, []*model.Order{o}, nil)
	return &world{engine: e, cfg: cfg, vehicle: v, order: o}
}

// run advances n ticks with a planning cycle before each.
func (w *world) run(n int) {
	for i := 0; i < n; i++ {
		w.engine.PlanCycle(context.Background())
		w.engine.AdvanceClock()
	}
}

// tick advances the clock only, with no planning in between.
func (w *world) tick(n int) {
	for i := 0; i < n; i++ {
		w.engine.AdvanceClock()
	}
}

func TestEngineClockAdvances(t *testing.T) {
	w := newWorld(t, nil)
	w.engine.AdvanceClock()
	if got := w.engine.Now(); !got.Equal(simStart.Add(5 * time.Minute)) {
		t.Fatalf("now = %v, want +5m", got)
	}
}

func TestEngineFullDeliveryCycle(t *testing.T) {
	w := newWorld(t, nil)

	w.engine.PlanCycle(context.Background())
	if w.vehicle.State != fleet.StateEnTransitoOrden {
		t.Fatalf("vehicle state = %s after planning, want EN_TRANSITO_ORDEN", w.vehicle.State)
	}
	if w.order.Status != model.OrderFullyAssigned {
		t.Fatalf("order status = %s, want FULLY_ASSIGNED", w.order.Status)
	}

	// 60 minutes of travel: 13 ticks of 5 minutes pass the arrival.
	w.run(13)
	if w.vehicle.State != fleet.StateEnEsperaOficina {
		t.Fatalf("vehicle state = %s after travel, want EN_ESPERA_EN_OFICINA", w.vehicle.State)
	}
	if w.order.DeliveredPackages != 5 || w.order.Status != model.OrderPendingPickup {
		t.Fatalf("order = %+v, want 5 delivered pending pickup", w.order)
	}
	// Delivery consumed destination warehouse capacity.
	if got := w.engine.Warehouses()["030303"]; got != 45 {
		t.Fatalf("destination capacity = %d, want 45", got)
	}

	// Office wait (2h), return route, travel home (1h): run well past it.
	w.run(60)
	if w.vehicle.State != fleet.StateEnAlmacen || !w.vehicle.Available {
		t.Fatalf("vehicle = %s available=%v, want idle at warehouse", w.vehicle.State, w.vehicle.Available)
	}
	if w.vehicle.CurrentUbigeo != "010101" {
		t.Fatalf("vehicle at %s, want back home", w.vehicle.CurrentUbigeo)
	}

	// Pickup clock (4h from delivery) has long expired: capacity released.
	if w.order.Status != model.OrderDelivered {
		t.Fatalf("order status = %s, want DELIVERED", w.order.Status)
	}
	if got := w.engine.Warehouses()["030303"]; got != 50 {
		t.Fatalf("destination capacity = %d after pickup, want restored 50", got)
	}

	_, orders, delivered := w.engine.Counts()
	if orders != 1 || delivered != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", orders, delivered)
	}
}

func TestEngineBreakdownCommand(t *testing.T) {
	w := newWorld(t, nil)

	if err := w.engine.Breakdown("NOPE", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown vehicle error = %v, want ErrNotFound", err)
	}
	// Idle vehicles reject the command.
	if err := w.engine.Breakdown("V01", 1); err == nil {
		t.Fatal("breakdown accepted while idle")
	}

	w.engine.PlanCycle(context.Background())
	if err := w.engine.Breakdown("V01", 3); err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if w.vehicle.State != fleet.StateAveriado3 {
		t.Fatalf("state = %s, want AVERIADO_3", w.vehicle.State)
	}
	log, err := w.engine.BreakdownLog("V01")
	if err != nil || len(log) != 1 {
		t.Fatalf("breakdown log = %v, %v", log, err)
	}
}

func TestEngineSeverity3RequeuesOrder(t *testing.T) {
	w := newWorld(t, nil)
	w.engine.PlanCycle(context.Background())
	if err := w.engine.Breakdown("V01", 3); err != nil {
		t.Fatalf("Breakdown: %v", err)
	}

	// 72h of repair at 5-minute ticks, with no planning in between.
	w.tick(72*12 + 1)
	if w.vehicle.State != fleet.StateEnAlmacen {
		t.Fatalf("vehicle state = %s after repair, want EN_ALMACEN", w.vehicle.State)
	}
	// The load went back to the order and a later cycle redispatches.
	if w.order.DeliveredPackages != 0 {
		t.Fatalf("order delivered = %d during outage", w.order.DeliveredPackages)
	}
	w.engine.PlanCycle(context.Background())
	if w.vehicle.State != fleet.StateEnTransitoOrden {
		t.Fatalf("vehicle state = %s, want redispatched", w.vehicle.State)
	}
}

func TestEngineBlockageForcesInfeasible(t *testing.T) {
	w := newWorld(t, []model.Blockage{{
		Origin: "010101", Destination: "030303",
		Start: simStart.Add(-time.Hour), End: simStart.Add(48 * time.Hour),
	}})
	w.engine.AdvanceClock()
	if got := len(w.engine.ActiveBlockages()); got != 1 {
		t.Fatalf("active blockages = %d, want 1", got)
	}

	// The only road is closed: assignment must roll back, not strand the
	// vehicle in ORDENES_CARGADAS.
	w.engine.PlanCycle(context.Background())
	if w.vehicle.State != fleet.StateEnAlmacen || !w.vehicle.Available {
		t.Fatalf("vehicle = %s available=%v, want rolled back to idle", w.vehicle.State, w.vehicle.Available)
	}
	if w.order.AssignedPackages != 0 || w.order.Status != model.OrderRegistered {
		t.Fatalf("order = %+v, want fully unwound", w.order)
	}
}

func TestEngineHorizonStops(t *testing.T) {
	w := newWorld(t, nil)
	w.engine.horizon = simStart.Add(10 * time.Minute)
	if w.engine.AdvanceClock() {
		t.Fatal("past horizon after one tick")
	}
	if !w.engine.AdvanceClock() {
		t.Fatal("horizon not reported")
	}
}

func TestEnginePositions(t *testing.T) {
	w := newWorld(t, nil)
	w.engine.PlanCycle(context.Background())
	// Half an hour into the one-hour leg: midway between the endpoints.
	w.tick(6)
	ps := w.engine.SamplePositions()
	if len(ps) != 1 {
		t.Fatalf("positions = %d, want 1", len(ps))
	}
	if ps[0].Point.Lat != 0.5 || ps[0].Point.Lng != 0.5 {
		t.Fatalf("midway position = %+v, want (0.5,0.5)", ps[0].Point)
	}

	pos, hist, err := w.engine.VehiclePosition("V01")
	if err != nil {
		t.Fatalf("VehiclePosition: %v", err)
	}
	if pos.State != fleet.StateEnTransitoOrden || len(hist) == 0 {
		t.Fatalf("pos = %+v hist = %d", pos, len(hist))
	}
	if _, _, err := w.engine.VehiclePosition("NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown vehicle error = %v", err)
	}
}

func TestEngineRollbackSkipsDissolvedBooking(t *testing.T) {
	w := newWorld(t, nil)
	e := w.engine
	e.maintenance = []model.MaintenanceWindow{{
		VehicleCode: "V01",
		Start:       simStart,
		End:         simStart.Add(8 * time.Hour),
	}}

	// Book the vehicle the way a planning cycle does, then let a clock tick
	// land while the route is still being computed. The tick pulls the
	// vehicle into maintenance and re-queues its load.
	e.mu.Lock()
	assignments := assign.Assign(e.orderList, e.vehicleList, e.now)
	e.mu.Unlock()
	if len(assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(assignments))
	}
	a := &assignments[0]
	w.tick(1)
	if w.vehicle.State != fleet.StateEnMantenimiento {
		t.Fatalf("vehicle state = %s, want EN_MANTENIMIENTO", w.vehicle.State)
	}
	if w.order.AssignedPackages != 0 {
		t.Fatalf("assigned = %d, want 0 after maintenance requeue", w.order.AssignedPackages)
	}

	// Another vehicle's booking lands in the meantime.
	w.order.Assign(3)

	e.mu.Lock()
	e.applyAssignment(a, nil)
	e.mu.Unlock()

	if w.vehicle.State != fleet.StateEnMantenimiento || w.vehicle.Available {
		t.Fatalf("vehicle = state %s available %v, maintenance window discarded",
			w.vehicle.State, w.vehicle.Available)
	}
	if w.order.AssignedPackages != 3 {
		t.Fatalf("assigned = %d, want 3; the stale rollback stripped another booking",
			w.order.AssignedPackages)
	}
}

func TestEnginePositionReadsLeaveHistoryAlone(t *testing.T) {
	w := newWorld(t, nil)
	for i := 0; i < 3; i++ {
		w.engine.Positions()
	}
	if n := len(w.vehicle.History); n != 0 {
		t.Fatalf("history = %d samples after read-only polls, want 0", n)
	}
	if ps := w.engine.SamplePositions(); len(ps) != 1 {
		t.Fatalf("sampled positions = %d, want 1", len(ps))
	}
	if n := len(w.vehicle.History); n != 1 {
		t.Fatalf("history = %d samples after one broadcast sample, want 1", n)
	}
}
