package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"fleetsim/internal/buildinfo"
)

// DebugInfoHandler handles GET /debug/info.
func (s *Server) DebugInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":    buildinfo.Info(),
		"time":     time.Now().UTC().Format(time.RFC3339),
		"simTime":  s.Engine.Now().UTC().Format(time.RFC3339),
		"simState": s.Scheduler.State(),
		"config": map[string]any{
			"PORT":             os.Getenv("PORT"),
			"RATE_RPS":         os.Getenv("RATE_RPS"),
			"RATE_BURST":       os.Getenv("RATE_BURST"),
			"HAS_DATABASE_URL": os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":    os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
