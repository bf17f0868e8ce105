package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// ClockTicks counts virtual clock advances.
	ClockTicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_clock_ticks_total", Help: "Total virtual clock ticks."},
	)
	// PlanningCycles counts planning worker runs.
	PlanningCycles = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_planning_cycles_total", Help: "Total planning cycles."},
	)
	// Assignments counts vehicle-order assignments by outcome.
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_assignments_total", Help: "Vehicle assignments by outcome."},
		[]string{"outcome"},
	)
	// CacheLookups counts route cache lookups by result.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_route_cache_lookups_total", Help: "Route cache lookups by result."},
		[]string{"result"},
	)
	// SolverCalls counts optimizer gateway invocations.
	SolverCalls = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_solver_calls_total", Help: "Optimizer gateway invocations."},
	)
	// SolverDuration records solver call durations in seconds.
	SolverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "sim_solver_duration_seconds", Help: "Solver call duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// Breakdowns counts vehicle breakdowns by severity.
	Breakdowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_breakdowns_total", Help: "Vehicle breakdowns by severity."},
		[]string{"severity"},
	)
	// Deliveries counts packages delivered.
	Deliveries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_packages_delivered_total", Help: "Packages delivered."},
	)
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
)

// RegisterDefault registers collectors to the engine registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(ClockTicks)
		Registry.MustRegister(PlanningCycles)
		Registry.MustRegister(Assignments)
		Registry.MustRegister(CacheLookups)
		Registry.MustRegister(SolverCalls)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(Breakdowns)
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(HTTPRequests)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
