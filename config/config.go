package config

import (
	"fmt"
	"os"

	"latsim/internal/latency"
	"latsim/pkg/model"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Simulation SimulationConfig       `yaml:"simulation"`
	Routes     map[string]RouteConfig `yaml:"routes"`
	Feed       FeedConfig             `yaml:"feed"`
	Stream     StreamConfig           `yaml:"stream"`
	Recorder   RecorderConfig         `yaml:"recorder"`
	Logging    LoggingConfig          `yaml:"logging"`
}

type SimulationConfig struct {
	Seed      int64   `yaml:"seed"`
	HorizonMs int64   `yaml:"horizon_ms"` // 0 = run until the queue drains
	MaxEvents uint64  `yaml:"max_events"` // 0 = unbounded
	PriceTick float64 `yaml:"price_tick"` // decimal price per tick
	LotSize   int64   `yaml:"lot_size"`
}

type RouteConfig struct {
	BaseMs   float64 `yaml:"base_ms"`
	Shape    float64 `yaml:"gamma_shape"`
	ScaleMs  float64 `yaml:"gamma_scale_ms"`
	LossProb float64 `yaml:"loss_prob"`
}

type FeedConfig struct {
	Path string `yaml:"path"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type RecorderConfig struct {
	Enabled bool `yaml:"enabled"` // connection details come from DB_* env vars
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration the YAML file overrides.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:      42,
			PriceTick: 0.01,
			LotSize:   1,
		},
		Routes: map[string]RouteConfig{
			"colo":   {BaseMs: 0.5, Shape: 2.0, ScaleMs: 0.1, LossProb: 0.0},
			"retail": {BaseMs: 20.0, Shape: 2.0, ScaleMs: 5.0, LossProb: 0.01},
		},
		Stream:  StreamConfig{Addr: "0.0.0.0:8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	if c.Simulation.PriceTick <= 0 {
		return fmt.Errorf("price_tick must be positive, got %v", c.Simulation.PriceTick)
	}
	if c.Simulation.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive, got %v", c.Simulation.LotSize)
	}
	if c.Simulation.HorizonMs < 0 {
		return fmt.Errorf("horizon_ms must be non-negative, got %v", c.Simulation.HorizonMs)
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}
	// route parameter validation happens in the latency model constructor
	return nil
}

// LatencyRoutes converts the YAML route table into the latency model's
// shape.
func (c *Config) LatencyRoutes() map[model.Route]latency.RouteConfig {
	routes := make(map[model.Route]latency.RouteConfig, len(c.Routes))
	for name, rc := range c.Routes {
		routes[model.Route(name)] = latency.RouteConfig{
			BaseMs:   rc.BaseMs,
			Shape:    rc.Shape,
			ScaleMs:  rc.ScaleMs,
			LossProb: rc.LossProb,
		}
	}
	return routes
}

// Horizon converts the configured horizon into virtual time.
func (c *Config) Horizon() model.Time {
	return model.Time(c.Simulation.HorizonMs * 1_000_000)
}
