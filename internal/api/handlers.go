package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetsim/internal/model"
	"fleetsim/internal/sim"
)

// SimulationHandler handles GET /v1/simulation.
func (s *Server) SimulationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	vehicles, orders, delivered := s.Engine.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     s.Scheduler.State(),
		"simTime":   s.Engine.Now().UTC().Format(time.RFC3339),
		"vehicles":  vehicles,
		"orders":    orders,
		"delivered": delivered,
	})
}

// SimulationControlHandler handles POST /v1/simulation/{start|pause|stop}.
func (s *Server) SimulationControlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/v1/simulation/")
	var err error
	switch action {
	case "start":
		err = s.Scheduler.Start()
	case "pause":
		err = s.Scheduler.Pause()
	case "stop":
		err = s.Scheduler.Stop()
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown action "+action, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusConflict, "Invalid transition", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.Scheduler.State()})
}

// VehiclesHandler dispatches /v1/vehicles/{code}/... subresources.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if rest == "positions" {
		s.positionsGeoJSON(w, r)
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	code, sub := parts[0], parts[1]
	switch sub {
	case "breakdown":
		s.breakdown(w, r, code)
	case "breakdowns":
		s.breakdownLog(w, r, code)
	case "position":
		s.vehiclePosition(w, r, code)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) breakdown(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Severity int `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.Engine.Breakdown(code, req.Severity); err != nil {
		if errors.Is(err, sim.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Vehicle not found", code, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusConflict, "Breakdown rejected", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"vehicle": code, "severity": req.Severity})
}

func (s *Server) breakdownLog(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	lines, err := s.Engine.BreakdownLog(code)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Vehicle not found", code, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicle": code, "entries": lines})
}

func (s *Server) vehiclePosition(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pos, history, err := s.Engine.VehiclePosition(code)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Vehicle not found", code, r.URL.Path)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"position": pos, "history": history})
}

func (s *Server) positionsGeoJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, model.PositionCollection(s.Engine.Positions()))
}

// OrdersHandler handles GET /v1/orders with an optional status filter.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items := []model.Order{}
	for _, o := range s.Engine.Orders() {
		if status != "" && o.Status != status {
			continue
		}
		items = append(items, o)
		if len(items) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// WarehousesHandler handles GET /v1/warehouses.
func (s *Server) WarehousesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capacities": s.Engine.Warehouses()})
}

// BlockagesHandler handles GET /v1/blockages/active.
func (s *Server) BlockagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	active := s.Engine.ActiveBlockages()
	writeJSON(w, http.StatusOK, map[string]any{"items": active, "count": len(active)})
}

// EventsHandler handles GET /v1/events against the archive sink.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Sink.List(r.Context(), r.URL.Query().Get("type"), r.URL.Query().Get("vehicle"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List events failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyHandler handles GET /readyz. Ready once the engine exists; a stopped
// simulation is still a servable API.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", "engine not initialized", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "state": s.Scheduler.State()})
}
