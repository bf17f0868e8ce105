package fleet

import (
	"time"

	"fleetsim/internal/model"
)

// Env is what one lifecycle tick may observe and call back into. The engine
// supplies closures so this package stays free of order/warehouse types.
type Env struct {
	Now         time.Time
	Maintenance []model.MaintenanceWindow

	// Deliver is called when a delivery route completes. It must apply the
	// vehicle's load to the order counters and the destination warehouse.
	Deliver func(v *Vehicle)
	// Reassign is called after a severity-2/3 repair: the undelivered load
	// goes back to the order's unassigned pool for the next planning cycle.
	Reassign func(v *Vehicle)
	// Returned is called when the vehicle arrives back at a warehouse.
	Returned func(v *Vehicle)
}

// Event is an observable lifecycle transition, for logs and the archive.
type Event struct {
	Vehicle string
	From    string
	To      string
	At      time.Time
	Detail  string
}

// A transition is one row of the state table: a source state, a guard over
// the vehicle and environment, and an action that moves the vehicle to its
// next state. Guards are evaluated in table order; the first match fires.
type transition struct {
	from  string
	guard func(*Vehicle, Env) bool
	fire  func(*Vehicle, Env) Event
}

var transitions = []transition{
	// Delivery leg finished: hand the load over and start the office wait.
	{
		from:  StateEnTransitoOrden,
		guard: func(v *Vehicle, e Env) bool { return v.advanceSegments(e.Now) },
		fire: func(v *Vehicle, e Env) Event {
			if e.Deliver != nil {
				e.Deliver(v)
			}
			v.ArrivedAt = e.Now
			v.clearRoute()
			v.State = StateEnEsperaOficina
			return Event{Vehicle: v.Code, From: StateEnTransitoOrden, To: StateEnEsperaOficina, At: e.Now, Detail: "delivered at " + v.CurrentUbigeo}
		},
	},
	// Office wait elapsed: eligible to return.
	{
		from:  StateEnEsperaOficina,
		guard: func(v *Vehicle, e Env) bool { return !e.Now.Before(v.ArrivedAt.Add(OfficeWait)) },
		fire: func(v *Vehicle, e Env) Event {
			v.State = StateListoParaRetorno
			return Event{Vehicle: v.Code, From: StateEnEsperaOficina, To: StateListoParaRetorno, At: e.Now}
		},
	},
	// Return leg finished: idle at the destination warehouse.
	{
		from:  StateHaciaAlmacen,
		guard: func(v *Vehicle, e Env) bool { return v.advanceSegments(e.Now) },
		fire: func(v *Vehicle, e Env) Event {
			v.clearRoute()
			v.State = StateEnAlmacen
			v.Available = true
			v.OrderID = ""
			v.Load = 0
			if e.Returned != nil {
				e.Returned(v)
			}
			return Event{Vehicle: v.Code, From: StateHaciaAlmacen, To: StateEnAlmacen, At: e.Now, Detail: "returned to " + v.CurrentUbigeo}
		},
	},
	// Severity-1 repair done: resume the same segment, outage added to ETA.
	{
		from:  StateAveriado1,
		guard: func(v *Vehicle, e Env) bool { return !e.Now.Before(v.RepairDue) },
		fire: func(v *Vehicle, e Env) Event {
			v.resumeAfterRepair(e.Now)
			return Event{Vehicle: v.Code, From: StateAveriado1, To: StateEnTransitoOrden, At: e.Now, Detail: "repair complete, resuming segment"}
		},
	},
	// Severity-2/3 repair done: route discarded, straight back to warehouse.
	{
		from:  StateAveriado2,
		guard: func(v *Vehicle, e Env) bool { return !e.Now.Before(v.RepairDue) },
		fire:  repairReturn(StateAveriado2),
	},
	{
		from:  StateAveriado3,
		guard: func(v *Vehicle, e Env) bool { return !e.Now.Before(v.RepairDue) },
		fire:  repairReturn(StateAveriado3),
	},
	// Scheduled maintenance, only from non-transit, non-broken states. A
	// vehicle mid-leg defers entry until that leg completes.
	{from: StateEnAlmacen, guard: maintenanceDue, fire: enterMaintenance(StateEnAlmacen)},
	{from: StateOrdenesCargadas, guard: maintenanceDue, fire: enterMaintenance(StateOrdenesCargadas)},
	{from: StateEnEsperaOficina, guard: maintenanceDue, fire: enterMaintenance(StateEnEsperaOficina)},
	{from: StateListoParaRetorno, guard: maintenanceDue, fire: enterMaintenance(StateListoParaRetorno)},
	// Maintenance window over.
	{
		from:  StateEnMantenimiento,
		guard: func(v *Vehicle, e Env) bool { return e.Now.After(v.MaintenanceUntil) },
		fire: func(v *Vehicle, e Env) Event {
			v.MaintenanceUntil = time.Time{}
			v.State = StateEnAlmacen
			v.Available = true
			return Event{Vehicle: v.Code, From: StateEnMantenimiento, To: StateEnAlmacen, At: e.Now}
		},
	},
}

func repairReturn(from string) func(*Vehicle, Env) Event {
	return func(v *Vehicle, e Env) Event {
		if e.Reassign != nil {
			e.Reassign(v)
		}
		v.clearRoute()
		v.CurrentUbigeo = v.HomeUbigeo
		v.State = StateEnAlmacen
		v.Available = true
		v.OrderID = ""
		v.Load = 0
		v.Severity = 0
		v.RepairDue = time.Time{}
		return Event{Vehicle: v.Code, From: from, To: StateEnAlmacen, At: e.Now, Detail: "repair complete, load re-queued"}
	}
}

func maintenanceDue(v *Vehicle, e Env) bool {
	for _, w := range e.Maintenance {
		if w.VehicleCode == v.Code && w.Covers(e.Now) {
			v.MaintenanceUntil = w.End
			return true
		}
	}
	return false
}

func enterMaintenance(from string) func(*Vehicle, Env) Event {
	return func(v *Vehicle, e Env) Event {
		if v.Load > 0 && e.Reassign != nil {
			e.Reassign(v)
		}
		v.clearRoute()
		v.State = StateEnMantenimiento
		v.Available = false
		v.OrderID = ""
		v.Load = 0
		return Event{Vehicle: v.Code, From: from, To: StateEnMantenimiento, At: e.Now}
	}
}

// Tick dispatches the transition table against one vehicle. Transitions can
// chain within a tick (a repair completing can immediately finish a
// segment), so the table is re-evaluated until no guard fires.
func Tick(v *Vehicle, e Env) []Event {
	var events []Event
	for {
		fired := false
		for _, t := range transitions {
			if t.from != v.State {
				continue
			}
			if !t.guard(v, e) {
				continue
			}
			events = append(events, t.fire(v, e))
			fired = true
			break
		}
		if !fired {
			return events
		}
	}
}
