package warehouse

import (
	"log"
	"sync"

	"fleetsim/internal/model"
)

// Ledger tracks bounded warehouse capacity per location. Capacity is
// consumed when packages are delivered to a destination and released when
// the order finally clears pickup.
type Ledger struct {
	mu       sync.Mutex
	capacity map[string]int // static upper bounds
	current  map[string]int
}

// NewLedger seeds counters from the static location capacities.
func NewLedger(locations map[string]model.Location) *Ledger {
	l := &Ledger{capacity: map[string]int{}, current: map[string]int{}}
	for code, loc := range locations {
		l.capacity[code] = loc.WarehouseCapacity
		l.current[code] = loc.WarehouseCapacity
	}
	return l
}

// Reserve consumes qty units of capacity at a warehouse, clamping at zero
// with a warning. Unknown ubigeos are logged and ignored.
func (l *Ledger) Reserve(ubigeo string, qty int) {
	if qty <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.current[ubigeo]
	if !ok {
		log.Printf("ledger: unknown warehouse %s, reserve ignored", ubigeo)
		return
	}
	if qty > cur {
		log.Printf("ledger: warehouse %s over capacity (want %d, have %d), clamped", ubigeo, qty, cur)
		qty = cur
	}
	l.current[ubigeo] = cur - qty
}

// Release returns qty units of capacity, bounded above by the static
// warehouse capacity.
func (l *Ledger) Release(ubigeo string, qty int) {
	if qty <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.current[ubigeo]
	if !ok {
		log.Printf("ledger: unknown warehouse %s, release ignored", ubigeo)
		return
	}
	cur += qty
	if maxCap := l.capacity[ubigeo]; cur > maxCap {
		log.Printf("ledger: warehouse %s release past capacity %d, clamped", ubigeo, maxCap)
		cur = maxCap
	}
	l.current[ubigeo] = cur
}

// Current returns the remaining capacity at a warehouse.
func (l *Ledger) Current(ubigeo string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current[ubigeo]
}

// Snapshot copies the current counters for the query surface.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.current))
	for k, v := range l.current {
		out[k] = v
	}
	return out
}
