package fleet

import (
	"fmt"
	"time"

	"fleetsim/internal/model"
)

// Vehicle lifecycle states.
const (
	StateEnAlmacen        = "EN_ALMACEN"
	StateOrdenesCargadas  = "ORDENES_CARGADAS"
	StateEnTransitoOrden  = "EN_TRANSITO_ORDEN"
	StateEnEsperaOficina  = "EN_ESPERA_EN_OFICINA"
	StateListoParaRetorno = "LISTO_PARA_RETORNO"
	StateHaciaAlmacen     = "HACIA_ALMACEN"
	StateAveriado1        = "AVERIADO_1"
	StateAveriado2        = "AVERIADO_2"
	StateAveriado3        = "AVERIADO_3"
	StateEnMantenimiento  = "EN_MANTENIMIENTO"
)

// OfficeWait is the post-delivery wait before a vehicle may return.
const OfficeWait = 120 * time.Minute

// RepairTime maps breakdown severity to repair duration.
func RepairTime(severity int) time.Duration {
	switch severity {
	case 1:
		return 4 * time.Hour
	case 2:
		return 36 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// Vehicle is the mutable runtime of one truck. Created at load in
// EN_ALMACEN, never destroyed. All mutation happens under the engine lock.
type Vehicle struct {
	Code          string `json:"code"`
	Capacity      int    `json:"capacity"`
	CurrentUbigeo string `json:"currentUbigeo"`
	HomeUbigeo    string `json:"homeUbigeo"`
	Available     bool   `json:"available"`
	State         string `json:"state"`

	// Active route, if any. Segments are immutable once attached.
	Route        []model.RouteSegment `json:"route,omitempty"`
	SegmentIndex int                  `json:"segmentIndex"`
	// segmentETAs[i] is the estimated arrival at the end of Route[i].
	segmentETAs []time.Time
	// segmentStart is when travel on the current segment (re)started.
	segmentStart time.Time

	DepartedAt time.Time `json:"departedAt,omitempty"`
	ArrivedAt  time.Time `json:"arrivedAt,omitempty"`

	// Order being served while in transit.
	OrderID string `json:"orderId,omitempty"`
	Load    int    `json:"load"`

	// Breakdown bookkeeping.
	Severity      int           `json:"severity,omitempty"`
	RepairDue     time.Time     `json:"repairDue,omitempty"`
	outageStart   time.Time
	frozenElapsed time.Duration

	// Maintenance window currently being honored.
	MaintenanceUntil time.Time `json:"maintenanceUntil,omitempty"`

	// ReturnPending guards against duplicate return-route computations.
	ReturnPending bool `json:"-"`

	History      []model.PositionSample `json:"-"`
	BreakdownLog []string               `json:"-"`
}

// NewVehicle creates a vehicle idle at its home warehouse.
func NewVehicle(code string, capacity int, home string) *Vehicle {
	return &Vehicle{
		Code:          code,
		Capacity:      capacity,
		CurrentUbigeo: home,
		HomeUbigeo:    home,
		Available:     true,
		State:         StateEnAlmacen,
	}
}

// LoadOrder books the vehicle for an order: EN_ALMACEN -> ORDENES_CARGADAS.
// The vehicle is marked unavailable immediately so a later order in the same
// planning cycle cannot double-book it.
func (v *Vehicle) LoadOrder(orderID string, qty int) error {
	if v.State != StateEnAlmacen {
		return fmt.Errorf("vehicle %s: cannot load in state %s", v.Code, v.State)
	}
	v.State = StateOrdenesCargadas
	v.Available = false
	v.OrderID = orderID
	v.Load = qty
	return nil
}

// StartJourney attaches a computed route and begins transit:
// ORDENES_CARGADAS -> EN_TRANSITO_ORDEN. Records departure time and the
// per-segment arrival estimates.
func (v *Vehicle) StartJourney(route []model.RouteSegment, now time.Time) error {
	if v.State != StateOrdenesCargadas {
		return fmt.Errorf("vehicle %s: cannot start journey in state %s", v.Code, v.State)
	}
	if len(route) == 0 {
		return fmt.Errorf("vehicle %s: empty route", v.Code)
	}
	v.attachRoute(route, now)
	v.DepartedAt = now
	v.State = StateEnTransitoOrden
	return nil
}

// StartReturn attaches a route back to a warehouse:
// LISTO_PARA_RETORNO -> HACIA_ALMACEN.
func (v *Vehicle) StartReturn(route []model.RouteSegment, now time.Time) error {
	if v.State != StateListoParaRetorno {
		return fmt.Errorf("vehicle %s: cannot start return in state %s", v.Code, v.State)
	}
	if len(route) == 0 {
		return fmt.Errorf("vehicle %s: empty return route", v.Code)
	}
	v.attachRoute(route, now)
	v.DepartedAt = now
	v.State = StateHaciaAlmacen
	v.ReturnPending = false
	return nil
}

func (v *Vehicle) attachRoute(route []model.RouteSegment, now time.Time) {
	v.Route = append([]model.RouteSegment(nil), route...)
	v.SegmentIndex = 0
	v.segmentStart = now
	v.segmentETAs = make([]time.Time, len(route))
	eta := now
	for i, s := range route {
		eta = eta.Add(minutes(s.DurationMinutes))
		v.segmentETAs[i] = eta
	}
}

func (v *Vehicle) clearRoute() {
	v.Route = nil
	v.segmentETAs = nil
	v.SegmentIndex = 0
}

// advanceSegments moves the vehicle along its route: whenever now reaches
// the current segment's estimated arrival, the next segment begins. Returns
// true once no segments remain.
func (v *Vehicle) advanceSegments(now time.Time) bool {
	for v.SegmentIndex < len(v.Route) {
		eta := v.segmentETAs[v.SegmentIndex]
		if now.Before(eta) {
			return false
		}
		v.CurrentUbigeo = v.Route[v.SegmentIndex].To
		v.SegmentIndex++
		v.segmentStart = eta
	}
	return true
}

// Moving reports whether the vehicle is in a moving state.
func (v *Vehicle) Moving() bool {
	return v.State == StateEnTransitoOrden || v.State == StateHaciaAlmacen
}

// Broken reports whether the vehicle is in a breakdown state.
func (v *Vehicle) Broken() bool {
	switch v.State {
	case StateAveriado1, StateAveriado2, StateAveriado3:
		return true
	}
	return false
}

// Breakdown freezes the vehicle mid-transit with the given severity. Only a
// vehicle in EN_TRANSITO_ORDEN can break down; anything else is rejected.
func (v *Vehicle) Breakdown(severity int, now time.Time) error {
	if v.State != StateEnTransitoOrden {
		return fmt.Errorf("vehicle %s not in transit (state %s)", v.Code, v.State)
	}
	if severity < 1 || severity > 3 {
		return fmt.Errorf("invalid severity %d", severity)
	}
	v.frozenElapsed = now.Sub(v.segmentStart)
	if v.frozenElapsed < 0 {
		v.frozenElapsed = 0
	}
	v.outageStart = now
	v.Severity = severity
	v.RepairDue = now.Add(RepairTime(severity))
	v.Available = false
	switch severity {
	case 1:
		v.State = StateAveriado1
	case 2:
		v.State = StateAveriado2
	default:
		v.State = StateAveriado3
	}
	v.BreakdownLog = append(v.BreakdownLog, fmt.Sprintf(
		"%s severity=%d segment=%d elapsed=%s repairDue=%s",
		now.UTC().Format(time.RFC3339), severity, v.SegmentIndex,
		v.frozenElapsed, v.RepairDue.UTC().Format(time.RFC3339)))
	return nil
}

// resumeAfterRepair rebuilds the remaining arrival estimates after a
// severity-1 repair, preserving time already travelled into the segment and
// pushing the delivery estimate out by the outage duration.
func (v *Vehicle) resumeAfterRepair(now time.Time) {
	v.segmentStart = now.Add(-v.frozenElapsed)
	eta := v.segmentStart
	for i := v.SegmentIndex; i < len(v.Route); i++ {
		eta = eta.Add(minutes(v.Route[i].DurationMinutes))
		v.segmentETAs[i] = eta
	}
	v.Severity = 0
	v.RepairDue = time.Time{}
	v.frozenElapsed = 0
	v.State = StateEnTransitoOrden
}

// Position interpolates the vehicle's location at now. While moving, it sits
// on the line between the current segment's endpoints at the elapsed
// fraction of the segment duration; otherwise it is at CurrentUbigeo.
func (v *Vehicle) Position(now time.Time, locations map[string]model.Location) model.GeoPoint {
	if (v.Moving() || v.Broken()) && v.SegmentIndex < len(v.Route) {
		seg := v.Route[v.SegmentIndex]
		from, okF := locations[seg.From]
		to, okT := locations[seg.To]
		if okF && okT {
			dur := minutes(seg.DurationMinutes)
			elapsed := now.Sub(v.segmentStart)
			if v.Broken() {
				elapsed = v.frozenElapsed
			}
			frac := 0.0
			if dur > 0 {
				frac = float64(elapsed) / float64(dur)
			}
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			return model.GeoPoint{
				Lat: from.Lat + (to.Lat-from.Lat)*frac,
				Lng: from.Lng + (to.Lng-from.Lng)*frac,
			}
		}
	}
	if loc, ok := locations[v.CurrentUbigeo]; ok {
		return model.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
	}
	return model.GeoPoint{}
}

// RecordPosition appends to the bounded position history.
func (v *Vehicle) RecordPosition(now time.Time, p model.GeoPoint) {
	v.History = append(v.History, model.PositionSample{At: now, Point: p, State: v.State})
	const maxHistory = 2048
	if len(v.History) > maxHistory {
		v.History = v.History[len(v.History)-maxHistory:]
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
