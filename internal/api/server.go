package api

import (
	"net/http"
	"os"
	"strings"

	"fleetsim/internal/archive"
	"fleetsim/internal/config"
	"fleetsim/internal/model"
	"fleetsim/internal/sim"
)

// TopicPositions carries the fleet-wide position stream; per-vehicle topics
// are TopicVehicle(code).
const TopicPositions = "positions"

func TopicVehicle(code string) string { return "vehicle:" + code }

type Server struct {
	Cfg       config.Config
	Engine    *sim.Engine
	Scheduler *sim.Scheduler
	Sink      archive.Sink
	Broker    EventBroker
}

// NewSink picks the event archive backend. If DATABASE_URL is unset, events
// stay in memory.
func NewSink() (archive.Sink, error) {
	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		return archive.NewMemory(), nil
	}
	return archive.NewPostgres(dsn)
}

// NewServer wires the HTTP surface over a built engine. The broker falls
// back to in-memory fan-out when REDIS_URL is unset or unreachable.
func NewServer(cfg config.Config, eng *sim.Engine, sink archive.Sink) *Server {
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return &Server{Cfg: cfg, Engine: eng, Sink: sink, Broker: broker}
}

// Routes builds the HTTP mux for the command surface. Metrics and any other
// process-level endpoints are mounted by the caller.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/simulation", s.SimulationHandler)
	mux.HandleFunc("/v1/simulation/", s.SimulationControlHandler)

	mux.HandleFunc("/v1/vehicles/", s.VehiclesHandler)
	mux.HandleFunc("/v1/positions/ws", s.PositionStreamHandler)

	mux.HandleFunc("/v1/orders", s.OrdersHandler)
	mux.HandleFunc("/v1/warehouses", s.WarehousesHandler)
	mux.HandleFunc("/v1/blockages/active", s.BlockagesHandler)
	mux.HandleFunc("/v1/events", s.EventsHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugInfoHandler)
	return mux
}

// BroadcastPositions satisfies sim.Broadcaster. Each snapshot goes out on
// the fleet topic and on every vehicle's own topic.
func (s *Server) BroadcastPositions(ps []model.VehiclePosition) {
	frame := make([]map[string]any, 0, len(ps))
	for _, p := range ps {
		d := map[string]any{
			"code":  p.Code,
			"state": p.State,
			"lat":   p.Point.Lat,
			"lng":   p.Point.Lng,
			"ts":    p.At,
		}
		frame = append(frame, d)
		s.Broker.Publish(TopicVehicle(p.Code), Event{Type: "vehicle.position", Data: d})
	}
	s.Broker.Publish(TopicPositions, Event{Type: "fleet.positions", Data: map[string]any{"positions": frame}})
}
