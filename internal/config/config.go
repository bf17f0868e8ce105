package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config holds the tunable parameters of a simulation run.
type Config struct {
	// Data file locations.
	Data struct {
		Locations   string `yaml:"locations"`
		Edges       string `yaml:"edges"`
		Vehicles    string `yaml:"vehicles"`
		Orders      string `yaml:"orders"`
		Blockages   string `yaml:"blockages"`
		Maintenance string `yaml:"maintenance"`
	} `yaml:"data"`

	Clock struct {
		// Start is the virtual time the clock begins at (RFC3339).
		Start string `yaml:"start"`
		// TickMinutes is how many simulated minutes one clock tick advances.
		TickMinutes int `yaml:"tickMinutes"`
		// SpeedFactor scales simulated time against real time; a factor of
		// 60 runs one simulated hour per real minute.
		SpeedFactor float64 `yaml:"speedFactor"`
		// HorizonHours self-stops the simulation once the clock passes it.
		HorizonHours int `yaml:"horizonHours"`
	} `yaml:"clock"`

	Planning struct {
		// IntervalMinutes is the simulated-time cadence of planning cycles.
		IntervalMinutes int `yaml:"intervalMinutes"`
		// SolverBudgetMs bounds one solver invocation.
		SolverBudgetMs int `yaml:"solverBudgetMs"`
		// RouteWaitMs bounds how long a planning cycle waits for its
		// asynchronous route resolution before retrying next cycle.
		RouteWaitMs int `yaml:"routeWaitMs"`
	} `yaml:"planning"`

	Broadcast struct {
		// IntervalMs is the real-time cadence of position broadcasts.
		IntervalMs int `yaml:"intervalMs"`
	} `yaml:"broadcast"`

	Cache struct {
		// MaxKeys bounds the number of distinct origin-destination keys.
		MaxKeys int `yaml:"maxKeys"`
	} `yaml:"cache"`

	Shutdown struct {
		// GraceMs bounds worker teardown before forced cancellation.
		GraceMs int `yaml:"graceMs"`
	} `yaml:"shutdown"`
}

// Load reads a YAML config file and applies defaults for anything unset.
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Clock.TickMinutes <= 0 {
		c.Clock.TickMinutes = 5
	}
	if c.Clock.SpeedFactor <= 0 {
		c.Clock.SpeedFactor = 60
	}
	if c.Clock.HorizonHours <= 0 {
		c.Clock.HorizonHours = 24 * 7
	}
	if c.Planning.IntervalMinutes <= 0 {
		c.Planning.IntervalMinutes = 15
	}
	if c.Planning.SolverBudgetMs <= 0 {
		c.Planning.SolverBudgetMs = 2000
	}
	if c.Planning.RouteWaitMs <= 0 {
		c.Planning.RouteWaitMs = 5000
	}
	if c.Broadcast.IntervalMs <= 0 {
		c.Broadcast.IntervalMs = 1000
	}
	if c.Cache.MaxKeys <= 0 {
		c.Cache.MaxKeys = 512
	}
	if c.Shutdown.GraceMs <= 0 {
		c.Shutdown.GraceMs = 3000
	}
}

// TickInterval converts the simulated clock cadence to real time.
func (c Config) TickInterval() time.Duration {
	return scaled(c.Clock.TickMinutes, c.Clock.SpeedFactor)
}

// PlanningInterval converts the planning cadence to real time.
func (c Config) PlanningInterval() time.Duration {
	return scaled(c.Planning.IntervalMinutes, c.Clock.SpeedFactor)
}

func scaled(simMinutes int, speed float64) time.Duration {
	d := time.Duration(float64(simMinutes) / speed * float64(time.Minute))
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// StartTime parses the configured clock start, defaulting to now (UTC).
func (c Config) StartTime() time.Time {
	if c.Clock.Start != "" {
		if t, err := time.Parse(time.RFC3339, c.Clock.Start); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
