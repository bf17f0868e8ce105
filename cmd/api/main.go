package main

import (
	"bufio"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetsim/internal/api"
	"fleetsim/internal/archive"
	"fleetsim/internal/blockage"
	"fleetsim/internal/config"
	"fleetsim/internal/fleet"
	"fleetsim/internal/ingest"
	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/network"
	"fleetsim/internal/routecache"
	"fleetsim/internal/sim"
	"fleetsim/internal/solver"
	"fleetsim/internal/warehouse"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	autostart := flag.Bool("start", false, "start the simulation immediately")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	metrics.RegisterDefault()

	sink, err := api.NewSink()
	if err != nil {
		log.Fatalf("event archive: %v", err)
	}
	eng, err := buildEngine(cfg, sink)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	srv := api.NewServer(cfg, eng, sink)
	sched := sim.NewScheduler(eng, cfg, srv)
	srv.Scheduler = sched
	if *autostart {
		if err := sched.Start(); err != nil {
			log.Fatalf("start simulation: %v", err)
		}
	}

	mux := srv.Routes()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.RateLimit(logMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("fleetsim API listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// buildEngine loads the world files named in cfg.Data and assembles the
// simulation engine on top of them.
func buildEngine(cfg config.Config, sink archive.Sink) (*sim.Engine, error) {
	locations := map[string]model.Location{}
	if cfg.Data.Locations != "" {
		var rep ingest.Report
		var err error
		locations, rep, err = ingest.Locations(cfg.Data.Locations)
		if err != nil {
			return nil, err
		}
		logReport(rep)
	}

	var edges []model.Edge
	if cfg.Data.Edges != "" {
		var rep ingest.Report
		var err error
		edges, rep, err = ingest.Edges(cfg.Data.Edges, locations)
		if err != nil {
			return nil, err
		}
		logReport(rep)
	}

	graph, err := network.Build(locations, edges)
	if err != nil {
		return nil, err
	}

	base := cfg.StartTime()

	var vehicles []*fleet.Vehicle
	if cfg.Data.Vehicles != "" {
		specs, rep, err := ingest.Vehicles(cfg.Data.Vehicles, locations)
		if err != nil {
			return nil, err
		}
		logReport(rep)
		for _, sp := range specs {
			vehicles = append(vehicles, fleet.NewVehicle(sp.Code, sp.Capacity, sp.Home))
		}
	}

	var orders []*model.Order
	if cfg.Data.Orders != "" {
		var rep ingest.Report
		orders, rep, err = ingest.Orders(cfg.Data.Orders, locations, base)
		if err != nil {
			return nil, err
		}
		logReport(rep)
	}

	var blockages []model.Blockage
	if cfg.Data.Blockages != "" {
		var rep ingest.Report
		blockages, rep, err = ingest.Blockages(cfg.Data.Blockages, locations, base)
		if err != nil {
			return nil, err
		}
		logReport(rep)
	}

	var maint []model.MaintenanceWindow
	if cfg.Data.Maintenance != "" {
		var rep ingest.Report
		maint, rep, err = ingest.Maintenance(cfg.Data.Maintenance)
		if err != nil {
			return nil, err
		}
		logReport(rep)
	}

	registry := blockage.NewRegistry(graph, blockages)
	ledger := warehouse.NewLedger(locations)
	cache := routecache.New(cfg.Cache.MaxKeys)
	gateway := solver.NewGateway(graph, cache, time.Duration(cfg.Planning.SolverBudgetMs)*time.Millisecond)

	log.Printf("world loaded: %d locations, %d edges, %d vehicles, %d orders, %d blockages, %d maintenance windows",
		len(locations), len(edges), len(vehicles), len(orders), len(blockages), len(maint))

	return sim.NewEngine(cfg, graph, registry, ledger, gateway, sink, vehicles, orders, maint), nil
}

func logReport(rep ingest.Report) {
	if rep.Skipped > 0 {
		log.Printf("ingest %s: %d parsed, %d skipped", rep.File, rep.Parsed, rep.Skipped)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps the websocket upgrade working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}
