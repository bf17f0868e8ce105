package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"fleetsim/internal/archive"
	"fleetsim/internal/assign"
	"fleetsim/internal/blockage"
	"fleetsim/internal/config"
	"fleetsim/internal/fleet"
	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/network"
	"fleetsim/internal/solver"
	"fleetsim/internal/warehouse"
)

// ErrNotFound marks lookups of unknown vehicles or orders.
var ErrNotFound = errors.New("not found")

// Engine owns the shared simulation state: the virtual clock, the vehicle
// table, the order book, and the working time matrix. One coarse lock guards
// every read/mutate sequence that must be atomic; the route cache keeps its
// own lock because route-resolution tasks query it concurrently.
type Engine struct {
	mu sync.Mutex

	cfg      config.Config
	graph    *network.Graph
	registry *blockage.Registry
	ledger   *warehouse.Ledger
	gateway  *solver.Gateway
	sink     archive.Sink

	now     time.Time
	horizon time.Time

	vehicles    map[string]*fleet.Vehicle
	vehicleList []*fleet.Vehicle
	orders      map[string]*model.Order
	orderList   []*model.Order
	maintenance []model.MaintenanceWindow

	working network.Matrix
	active  []model.Blockage
}

// NewEngine wires the engine over the loaded world.
func NewEngine(cfg config.Config, g *network.Graph, reg *blockage.Registry, led *warehouse.Ledger,
	gw *solver.Gateway, sink archive.Sink, vehicles []*fleet.Vehicle, orders []*model.Order,
	maintenance []model.MaintenanceWindow) *Engine {

	e := &Engine{
		cfg:         cfg,
		graph:       g,
		registry:    reg,
		ledger:      led,
		gateway:     gw,
		sink:        sink,
		now:         cfg.StartTime(),
		vehicles:    map[string]*fleet.Vehicle{},
		orders:      map[string]*model.Order{},
		maintenance: maintenance,
	}
	e.horizon = e.now.Add(time.Duration(cfg.Clock.HorizonHours) * time.Hour)
	for _, v := range vehicles {
		e.vehicles[v.Code] = v
		e.vehicleList = append(e.vehicleList, v)
	}
	for _, o := range orders {
		e.orders[o.ID] = o
		e.orderList = append(e.orderList, o)
	}
	e.active, e.working = reg.Update(e.now)
	return e
}

// Now returns the current virtual time.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// AdvanceClock moves the virtual clock forward one tick and runs the
// per-tick pipeline in its required order: blockage update, then vehicle
// lifecycle, then order status recomputation. Returns true once the clock
// has passed the configured horizon.
func (e *Engine) AdvanceClock() (pastHorizon bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.now = e.now.Add(time.Duration(e.cfg.Clock.TickMinutes) * time.Minute)
	metrics.ClockTicks.Inc()

	// 1. Blockages: the working matrix the next planning cycle sees.
	e.active, e.working = e.registry.Update(e.now)

	// 2. Vehicle lifecycle.
	env := e.lifecycleEnv()
	for _, v := range e.vehicleList {
		for _, evt := range fleet.Tick(v, env) {
			e.record("vehicle."+evt.To, evt.Vehicle, v.OrderID, map[string]any{
				"from": evt.From, "detail": evt.Detail,
			})
		}
	}

	// 3. Order status, including the pickup clock.
	for _, o := range e.orderList {
		if o.RecomputeStatus(e.now) {
			e.ledger.Release(o.Destination, o.DeliveredPackages)
			e.record("order.delivered", "", o.ID, map[string]any{"quantity": o.Quantity})
		}
	}

	return !e.now.Before(e.horizon)
}

// lifecycleEnv builds the tick environment. Callers must hold e.mu: the
// closures mutate orders and the ledger as part of the same atomic scope.
func (e *Engine) lifecycleEnv() fleet.Env {
	return fleet.Env{
		Now:         e.now,
		Maintenance: e.maintenance,
		Deliver: func(v *fleet.Vehicle) {
			o := e.orders[v.OrderID]
			if o == nil {
				log.Printf("engine: vehicle %s delivered unknown order %q", v.Code, v.OrderID)
				v.Load = 0
				return
			}
			delivered := o.Deliver(v.Load)
			e.ledger.Reserve(o.Destination, delivered)
			o.RecomputeStatus(e.now)
			metrics.Deliveries.Add(float64(delivered))
			e.record("order.arrival", v.Code, o.ID, map[string]any{"delivered": delivered})
			v.Load = 0
		},
		Reassign: func(v *fleet.Vehicle) {
			o := e.orders[v.OrderID]
			if o == nil {
				return
			}
			o.Unassign(v.Load)
			o.RecomputeStatus(e.now)
			e.record("order.requeued", v.Code, o.ID, map[string]any{"quantity": v.Load})
		},
		Returned: func(v *fleet.Vehicle) {
			e.record("vehicle.returned", v.Code, "", map[string]any{"at": v.CurrentUbigeo})
		},
	}
}

// planRequest is one pending route resolution from a planning cycle.
type planRequest struct {
	pair       solver.Pair
	assignment *assign.VehicleAssignment
	returnFor  *fleet.Vehicle
}

// PlanCycle runs one planning cycle: assignment under the engine lock, then
// route resolution against the gateway. The scheduler calls this from an
// asynchronous unit of work so a slow or infeasible solve never blocks the
// clock. Infeasible or timed-out assignments are rolled back and retried in
// a later cycle.
func (e *Engine) PlanCycle(ctx context.Context) {
	metrics.PlanningCycles.Inc()

	e.mu.Lock()
	now := e.now
	assignments := assign.Assign(e.orderList, e.vehicleList, now)
	requests := make([]planRequest, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		requests = append(requests, planRequest{
			pair:       solver.Pair{From: a.Order.Origin, To: a.Order.Destination},
			assignment: a,
		})
	}
	// Vehicles eligible to head home, one pending computation each.
	for _, v := range e.vehicleList {
		if v.State == fleet.StateListoParaRetorno && !v.ReturnPending {
			dest, ok := e.bestWarehouse(v.CurrentUbigeo)
			if !ok {
				continue
			}
			v.ReturnPending = true
			requests = append(requests, planRequest{
				pair:      solver.Pair{From: v.CurrentUbigeo, To: dest},
				returnFor: v,
			})
		}
	}
	working := e.working
	active := append([]model.Blockage(nil), e.active...)
	e.mu.Unlock()

	if len(requests) == 0 {
		return
	}

	pairs := make([]solver.Pair, len(requests))
	for i, r := range requests {
		pairs[i] = r.pair
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.Planning.RouteWaitMs)*time.Millisecond)
	defer cancel()
	metrics.SolverCalls.Inc()
	started := time.Now()
	routes, err := e.gateway.Resolve(waitCtx, pairs, working, active)
	metrics.SolverDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		log.Printf("engine: route resolution abandoned: %v", err)
		routes = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range requests {
		var segs []model.RouteSegment
		if routes != nil {
			segs = routes[i]
		}
		switch {
		case r.assignment != nil:
			e.applyAssignment(r.assignment, segs)
		case r.returnFor != nil:
			e.applyReturn(r.returnFor, segs)
		}
	}
}

// applyAssignment attaches a resolved route or rolls the booking back so the
// vehicle is not left unavailable without a route.
func (e *Engine) applyAssignment(a *assign.VehicleAssignment, segs []model.RouteSegment) {
	v := a.Vehicle
	if v.State != fleet.StateOrdenesCargadas || v.OrderID != a.Order.ID {
		// The booking dissolved while the route was being computed (a
		// clock tick moved the vehicle into maintenance and its load was
		// already re-queued). A second Unassign here would strip another
		// vehicle's share of the order, so leave everything alone.
		metrics.Assignments.WithLabelValues("stale").Inc()
		log.Printf("engine: vehicle %s left booking (state %s), order %s retried next cycle", v.Code, v.State, a.Order.ID)
		return
	}
	if len(segs) == 0 {
		a.Order.Unassign(a.Quantity)
		a.Order.RecomputeStatus(e.now)
		v.State = fleet.StateEnAlmacen
		v.Available = true
		v.OrderID = ""
		v.Load = 0
		metrics.Assignments.WithLabelValues("infeasible").Inc()
		log.Printf("engine: no route %s->%s, order %s retried next cycle", a.Order.Origin, a.Order.Destination, a.Order.ID)
		return
	}
	if err := v.StartJourney(segs, e.now); err != nil {
		// Booking verified above, so the quantity is still this vehicle's
		// to give back.
		a.Order.Unassign(a.Quantity)
		a.Order.RecomputeStatus(e.now)
		v.State = fleet.StateEnAlmacen
		v.Available = true
		v.OrderID = ""
		v.Load = 0
		log.Printf("engine: %v", err)
		return
	}
	metrics.Assignments.WithLabelValues("routed").Inc()
	e.record("vehicle.dispatched", v.Code, a.Order.ID, map[string]any{
		"quantity": a.Quantity, "segments": len(segs),
	})
}

func (e *Engine) applyReturn(v *fleet.Vehicle, segs []model.RouteSegment) {
	if len(segs) == 0 {
		// Allow a retry next cycle.
		v.ReturnPending = false
		return
	}
	if err := v.StartReturn(segs, e.now); err != nil {
		v.ReturnPending = false
		log.Printf("engine: %v", err)
	}
}

// bestWarehouse scores candidate warehouses by static travel time from the
// given location, preferring the vehicle-independent nearest one with
// nonzero capacity.
func (e *Engine) bestWarehouse(from string) (string, bool) {
	best := ""
	bestMins := 0.0
	for code, loc := range e.graph.Locations {
		if loc.WarehouseCapacity <= 0 || code == from {
			continue
		}
		mins, ok := e.graph.TravelMinutes(from, code)
		if !ok {
			continue
		}
		if best == "" || mins < bestMins {
			best = code
			bestMins = mins
		}
	}
	return best, best != ""
}

// Breakdown applies the external breakdown command. A vehicle not currently
// delivering rejects the command with an explicit error.
func (e *Engine) Breakdown(code string, severity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vehicles[code]
	if !ok {
		return fmt.Errorf("vehicle %s: %w", code, ErrNotFound)
	}
	if err := v.Breakdown(severity, e.now); err != nil {
		log.Printf("engine: breakdown rejected: %v", err)
		return err
	}
	metrics.Breakdowns.WithLabelValues(strconv.Itoa(severity)).Inc()
	e.record("vehicle.breakdown", code, v.OrderID, map[string]any{"severity": severity})
	return nil
}

// BreakdownLog returns the breakdown log lines for a vehicle.
func (e *Engine) BreakdownLog(code string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vehicles[code]
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", code, ErrNotFound)
	}
	return append([]string(nil), v.BreakdownLog...), nil
}

// Positions snapshots every vehicle's interpolated position. Read-only;
// HTTP polls must not pollute the histories.
func (e *Engine) Positions() []model.VehiclePosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionsLocked(false)
}

// SamplePositions is the broadcast-cadence variant: it snapshots positions
// and appends each to its vehicle's history.
func (e *Engine) SamplePositions() []model.VehiclePosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionsLocked(true)
}

func (e *Engine) positionsLocked(record bool) []model.VehiclePosition {
	out := make([]model.VehiclePosition, 0, len(e.vehicleList))
	for _, v := range e.vehicleList {
		p := v.Position(e.now, e.graph.Locations)
		if record {
			v.RecordPosition(e.now, p)
		}
		out = append(out, model.VehiclePosition{Code: v.Code, State: v.State, Point: p, At: e.now})
	}
	return out
}

// VehiclePosition returns one vehicle's current position and history.
func (e *Engine) VehiclePosition(code string) (model.VehiclePosition, []model.PositionSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vehicles[code]
	if !ok {
		return model.VehiclePosition{}, nil, fmt.Errorf("vehicle %s: %w", code, ErrNotFound)
	}
	p := v.Position(e.now, e.graph.Locations)
	hist := append([]model.PositionSample(nil), v.History...)
	return model.VehiclePosition{Code: v.Code, State: v.State, Point: p, At: e.now}, hist, nil
}

// Orders snapshots the order book, most urgent first.
func (e *Engine) Orders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.orderList))
	for _, o := range e.orderList {
		out = append(out, *o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueTime.Before(out[j].DueTime) })
	return out
}

// ActiveBlockages returns the currently active set.
func (e *Engine) ActiveBlockages() []model.Blockage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Blockage(nil), e.active...)
}

// Warehouses snapshots the capacity ledger.
func (e *Engine) Warehouses() map[string]int { return e.ledger.Snapshot() }

// Counts reports fleet/order totals for the status surface.
func (e *Engine) Counts() (vehicles, orders, delivered int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.orderList {
		if o.Status == model.OrderDelivered {
			delivered++
		}
	}
	return len(e.vehicleList), len(e.orderList), delivered
}

// record archives an event; archive failures are logged, never propagated
// into the tick.
func (e *Engine) record(typ, vehicle, orderID string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	evt := archive.NewEvent(typ, vehicle, orderID, e.now, payload)
	// Fire and forget: a slow archive must never stall a tick.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.sink.Record(ctx, evt); err != nil {
			log.Printf("engine: archive %s: %v", typ, err)
		}
	}()
}
