package assign

import (
	"log"
	"sort"
	"time"

	"fleetsim/internal/fleet"
	"fleetsim/internal/model"
)

// VehicleAssignment is the ephemeral product of one planning cycle: this
// vehicle carries this quantity for this order. Not persisted.
type VehicleAssignment struct {
	Vehicle  *fleet.Vehicle
	Order    *model.Order
	Quantity int
}

// Assign matches unassigned order quantity to idle vehicles. Deliberately
// greedy and myopic: orders by ascending due time, vehicles at the order's
// origin by descending capacity, preferring a single vehicle that covers the
// whole remainder. Matched vehicles transition to ORDENES_CARGADAS at once
// so a later order in the same cycle cannot double-book them. Leftover
// quantity stays PARTIALLY_ASSIGNED and is retried next cycle.
func Assign(orders []*model.Order, vehicles []*fleet.Vehicle, now time.Time) []VehicleAssignment {
	candidates := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if o.Assignable(now) && o.Unassigned() > 0 {
			candidates = append(candidates, o)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DueTime.Before(candidates[j].DueTime)
	})

	var result []VehicleAssignment
	for _, o := range candidates {
		idle := idleAt(vehicles, o.Origin)
		for _, v := range idle {
			rem := o.Unassigned()
			if rem <= 0 {
				break
			}
			if v.Capacity >= rem {
				// One vehicle covers the rest; book it and stop.
				result = append(result, book(v, o, rem))
				break
			}
			result = append(result, book(v, o, v.Capacity))
		}
		o.RecomputeStatus(now)
	}
	return result
}

func book(v *fleet.Vehicle, o *model.Order, qty int) VehicleAssignment {
	qty = o.Assign(qty)
	if err := v.LoadOrder(o.ID, qty); err != nil {
		// idleAt filtered on state, so this indicates a policy bug.
		log.Printf("assign: %v", err)
	}
	return VehicleAssignment{Vehicle: v, Order: o, Quantity: qty}
}

// idleAt returns EN_ALMACEN vehicles at a ubigeo, largest capacity first.
func idleAt(vehicles []*fleet.Vehicle, ubigeo string) []*fleet.Vehicle {
	var out []*fleet.Vehicle
	for _, v := range vehicles {
		if v.State == fleet.StateEnAlmacen && v.Available && v.CurrentUbigeo == ubigeo {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Capacity > out[j].Capacity })
	return out
}
