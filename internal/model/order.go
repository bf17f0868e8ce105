package model

import (
	"log"
	"time"
)

// PickupWait is how long a fully delivered order waits before the client
// clears pickup and the destination warehouse capacity is released.
const PickupWait = 4 * time.Hour

// Unassigned returns the quantity still waiting for a vehicle.
func (o *Order) Unassigned() int { return o.Quantity - o.AssignedPackages }

// Assignable reports whether the order can receive vehicles at the given time.
func (o *Order) Assignable(now time.Time) bool {
	if o.OrderTime.After(now) {
		return false
	}
	switch o.Status {
	case OrderRegistered, OrderPartiallyAssigned, OrderPartiallyArrived:
		return true
	}
	return false
}

// Assign books qty packages onto a vehicle, clamping to the unassigned
// remainder, and returns the quantity actually booked.
func (o *Order) Assign(qty int) int {
	if qty <= 0 {
		return 0
	}
	if rem := o.Unassigned(); qty > rem {
		log.Printf("order %s: assign %d exceeds unassigned %d, clamped", o.ID, qty, rem)
		qty = rem
	}
	o.AssignedPackages += qty
	return qty
}

// Unassign returns qty previously booked packages to the unassigned pool,
// used when a broken-down vehicle abandons its delivery.
func (o *Order) Unassign(qty int) {
	if qty <= 0 {
		return
	}
	if out := o.AssignedPackages - o.DeliveredPackages; qty > out {
		log.Printf("order %s: unassign %d exceeds outstanding %d, clamped", o.ID, qty, out)
		qty = out
	}
	o.AssignedPackages -= qty
}

// Deliver records qty packages arriving at the destination. Deliveries can
// never exceed the assigned count; overflow is clamped with a warning.
func (o *Order) Deliver(qty int) int {
	if qty <= 0 {
		return 0
	}
	if out := o.AssignedPackages - o.DeliveredPackages; qty > out {
		log.Printf("order %s: deliver %d exceeds assigned remainder %d, clamped", o.ID, qty, out)
		qty = out
	}
	o.DeliveredPackages += qty
	return qty
}

// RecomputeStatus derives the status from the package counters. It must be
// called after every counter mutation and on every clock tick (the pickup
// clock is a time gate, not a blocking wait). Returns true when the order
// just cleared pickup, so the caller can release warehouse capacity.
func (o *Order) RecomputeStatus(now time.Time) (pickedUp bool) {
	if o.Status == OrderDelivered {
		return false
	}
	switch {
	case o.AssignedPackages == 0:
		o.Status = OrderRegistered
	case o.AssignedPackages < o.Quantity:
		o.Status = OrderPartiallyAssigned
	case o.DeliveredPackages == 0:
		o.Status = OrderFullyAssigned
	case o.DeliveredPackages < o.AssignedPackages:
		o.Status = OrderPartiallyArrived
	default:
		// deliveredPackages == assignedPackages == quantity
		if o.Status != OrderPendingPickup {
			o.Status = OrderPendingPickup
			o.PickupDeadline = now.Add(PickupWait)
		}
		if !now.Before(o.PickupDeadline) {
			o.Status = OrderDelivered
			return true
		}
	}
	return false
}
