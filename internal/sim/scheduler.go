package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fleetsim/internal/config"
	"fleetsim/internal/model"
)

// Scheduler states.
const (
	StateStopped = "STOPPED"
	StateRunning = "RUNNING"
	StatePaused  = "PAUSED"
)

var (
	// ErrAlreadyRunning rejects a second Start.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrNotRunning rejects pause/stop of a stopped simulation.
	ErrNotRunning = errors.New("simulation not running")
)

// Broadcaster receives periodic position snapshots for the presentation
// layer. The api package's broker satisfies this.
type Broadcaster interface {
	BroadcastPositions(ps []model.VehiclePosition)
}

// Scheduler runs the three periodic workers over the engine: clock
// advancement, planning, and position broadcast. Pausing gates worker
// effects at the top of each tick without cancelling in-flight route
// computations; stopping tears the workers down within a bounded grace
// period.
type Scheduler struct {
	mu     sync.Mutex
	state  string
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	engine *Engine
	cfg    config.Config
	bcast  Broadcaster
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(e *Engine, cfg config.Config, b Broadcaster) *Scheduler {
	return &Scheduler{state: StateStopped, engine: e, cfg: cfg, bcast: b}
}

// State returns the current scheduler state.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the workers. Restarting a paused simulation resumes it.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StatePaused:
		s.state = StateRunning
		log.Printf("scheduler: resumed")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.state = StateRunning

	s.worker("clock", s.cfg.TickInterval(), func() {
		if s.engine.AdvanceClock() {
			log.Printf("scheduler: horizon reached at %s, stopping", s.engine.Now().Format(time.RFC3339))
			go func() { _ = s.Stop() }()
		}
	})
	s.worker("planning", s.cfg.PlanningInterval(), func() {
		// Route resolution is its own unit of work so a slow solve
		// never delays the next clock tick.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer recoverTick("planning")
			s.engine.PlanCycle(ctx)
		}()
	})
	s.worker("broadcast", time.Duration(s.cfg.Broadcast.IntervalMs)*time.Millisecond, func() {
		if s.bcast != nil {
			s.bcast.BroadcastPositions(s.engine.SamplePositions())
		}
	})

	log.Printf("scheduler: started (tick=%s planning=%s)", s.cfg.TickInterval(), s.cfg.PlanningInterval())
	return nil
}

// Pause gates worker effects without tearing anything down.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return ErrNotRunning
	}
	s.state = StatePaused
	log.Printf("scheduler: paused")
	return nil
}

// Stop shuts the workers down. In-flight route computations get a bounded
// grace period before forced cancellation.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopped
	close(s.stop)
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(s.cfg.Shutdown.GraceMs) * time.Millisecond):
		log.Printf("scheduler: grace period elapsed, forcing cancellation")
		cancel()
		<-done
	}
	cancel()
	log.Printf("scheduler: stopped")
	return nil
}

// worker runs fn at a fixed cadence until stop. A paused scheduler skips the
// tick body; a panicking tick is logged and the next tick still runs.
func (s *Scheduler) worker(name string, every time.Duration, fn func()) {
	stop := s.stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.State() != StateRunning {
					continue
				}
				func() {
					defer recoverTick(name)
					fn()
				}()
			}
		}
	}()
}

func recoverTick(name string) {
	if r := recover(); r != nil {
		log.Printf("scheduler: %s tick panicked: %v", name, r)
	}
}
