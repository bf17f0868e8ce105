package model

import "time"

// Natural regions used to derive order due times.
const (
	RegionCosta  = "COSTA"
	RegionSierra = "SIERRA"
	RegionSelva  = "SELVA"
)

// Location is a node of the road network, keyed by ubigeo. Immutable after load.
type Location struct {
	Ubigeo            string  `json:"ubigeo"`
	Name              string  `json:"name"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Region            string  `json:"region"`
	WarehouseCapacity int     `json:"warehouseCapacity"`
}

// Edge is a directed road segment between two known ubigeos.
type Edge struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DistanceKm  float64 `json:"distanceKm"`
	TravelHours float64 `json:"travelHours"`
}

// Blockage closes a directed edge for the half-open interval [Start, End).
// Blockages compare by value: identical fields mean the same blockage.
type Blockage struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// ActiveAt reports whether the blockage covers the given instant.
func (b Blockage) ActiveAt(now time.Time) bool {
	return !now.Before(b.Start) && now.Before(b.End)
}

// Order lifecycle statuses, a strict function of the two package counters.
const (
	OrderRegistered        = "REGISTERED"
	OrderPartiallyAssigned = "PARTIALLY_ASSIGNED"
	OrderFullyAssigned     = "FULLY_ASSIGNED"
	OrderPartiallyArrived  = "PARTIALLY_ARRIVED"
	OrderPendingPickup     = "PENDING_PICKUP"
	OrderDelivered         = "DELIVERED"
)

// Order is a time-windowed delivery request.
// Invariants: 0 <= AssignedPackages <= Quantity and
// 0 <= DeliveredPackages <= AssignedPackages.
type Order struct {
	ID                string    `json:"id"`
	Origin            string    `json:"origin"`
	Destination       string    `json:"destination"`
	Quantity          int       `json:"quantity"`
	OrderTime         time.Time `json:"orderTime"`
	DueTime           time.Time `json:"dueTime"`
	ClientID          string    `json:"clientId"`
	AssignedPackages  int       `json:"assignedPackages"`
	DeliveredPackages int       `json:"deliveredPackages"`
	Status            string    `json:"status"`
	// PickupDeadline is set when the order reaches PENDING_PICKUP.
	PickupDeadline time.Time `json:"pickupDeadline,omitempty"`
}

// DueOffset returns the delivery promise for a destination region.
func DueOffset(region string) time.Duration {
	switch region {
	case RegionCosta:
		return 24 * time.Hour
	case RegionSierra:
		return 48 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// RouteSegment is one hop of a planned route. Immutable once attached.
type RouteSegment struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	DisplayName     string  `json:"displayName"`
	DistanceKm      float64 `json:"distanceKm"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// Reversed returns the segment travelled in the opposite direction.
// Direction always comes from the structured From/To fields, never from
// parsing DisplayName.
func (s RouteSegment) Reversed() RouteSegment {
	return RouteSegment{
		From:            s.To,
		To:              s.From,
		DisplayName:     s.To + " to " + s.From,
		DistanceKm:      s.DistanceKm,
		DurationMinutes: s.DurationMinutes,
	}
}

// MaintenanceWindow schedules preventive maintenance for one vehicle.
type MaintenanceWindow struct {
	VehicleCode string    `json:"vehicleCode"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Covers reports whether the window contains the given instant.
func (m MaintenanceWindow) Covers(now time.Time) bool {
	return !now.Before(m.Start) && now.Before(m.End)
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PositionSample is one entry of a vehicle's position history.
type PositionSample struct {
	At    time.Time `json:"at"`
	Point GeoPoint  `json:"point"`
	State string    `json:"state"`
}

// VehiclePosition is the broadcastable snapshot of one vehicle.
type VehiclePosition struct {
	Code  string    `json:"code"`
	State string    `json:"state"`
	Point GeoPoint  `json:"point"`
	At    time.Time `json:"at"`
}

// GeoJSON presentation types for the positions endpoint.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// PointFeature builds a GeoJSON point feature for a vehicle position.
func PointFeature(p VehiclePosition) Feature {
	return Feature{
		Type:     "Feature",
		Geometry: Geometry{Type: "Point", Coordinates: []float64{p.Point.Lng, p.Point.Lat}},
		Properties: map[string]any{
			"code":  p.Code,
			"state": p.State,
			"ts":    p.At.UTC().Format(time.RFC3339),
		},
	}
}

// PositionCollection wraps vehicle positions as a FeatureCollection.
func PositionCollection(ps []VehiclePosition) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(ps))}
	for _, p := range ps {
		fc.Features = append(fc.Features, PointFeature(p))
	}
	return fc
}
