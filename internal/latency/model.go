// Package latency turns an order submission into a delivery delay or a
// loss decision, reproducibly for a fixed seed.
//
// Draw contract (fixed, do not reorder): per order, loss is drawn first,
// then the Gamma delay. Each order gets its own generator derived from
// (seed, order id), so the presence of unrelated orders never perturbs
// another order's draws.
package latency

import (
	"errors"
	"fmt"
	"time"

	"latsim/pkg/model"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrUnknownRoute = errors.New("unknown route")
)

// RouteConfig parameterizes one network path. Delay is
// base + Gamma(shape, scale) milliseconds; loss is Bernoulli(p).
type RouteConfig struct {
	BaseMs   float64 // fixed propagation floor, ms
	Shape    float64 // Gamma shape k
	ScaleMs  float64 // Gamma scale theta, ms
	LossProb float64 // Bernoulli loss probability
}

func (c RouteConfig) validate(route model.Route) error {
	if c.Shape <= 0 {
		return fmt.Errorf("route %q: gamma shape must be positive, got %v", route, c.Shape)
	}
	if c.ScaleMs <= 0 {
		return fmt.Errorf("route %q: gamma scale must be positive, got %v", route, c.ScaleMs)
	}
	if c.BaseMs < 0 {
		return fmt.Errorf("route %q: base latency must be non-negative, got %v", route, c.BaseMs)
	}
	if c.LossProb < 0 || c.LossProb > 1 {
		return fmt.Errorf("route %q: loss probability must be in [0,1], got %v", route, c.LossProb)
	}
	return nil
}

// Result is the resolved transit outcome for one order.
type Result struct {
	Delay time.Duration
	Lost  bool
}

type Model struct {
	seed   uint64
	routes map[model.Route]RouteConfig
}

// NewModel validates every route up front: bad distribution parameters
// are a configuration error, fatal to this configuration.
func NewModel(seed int64, routes map[model.Route]RouteConfig) (*Model, error) {
	if len(routes) == 0 {
		return nil, errors.New("latency model needs at least one route")
	}
	for route, cfg := range routes {
		if err := cfg.validate(route); err != nil {
			return nil, err
		}
	}
	return &Model{seed: uint64(seed), routes: routes}, nil
}

// Routes lists the configured route names.
func (m *Model) Routes() []model.Route {
	out := make([]model.Route, 0, len(m.routes))
	for r := range m.routes {
		out = append(out, r)
	}
	return out
}

// HasRoute reports whether route is configured.
func (m *Model) HasRoute(route model.Route) bool {
	_, ok := m.routes[route]
	return ok
}

// Resolve draws the transit outcome for one order. The same (seed, order
// id, route) always yields the same result, independent of call order.
func (m *Model) Resolve(orderID model.OrderID, route model.Route) (Result, error) {
	cfg, ok := m.routes[route]
	if !ok {
		return Result{}, fmt.Errorf("route %q: %w", route, ErrUnknownRoute)
	}

	rng := rand.New(rand.NewSource(streamSeed(m.seed, uint64(orderID))))

	// Loss first, delay second. Always burn both draws so the stream
	// layout stays fixed even for lost orders.
	loss := distuv.Bernoulli{P: cfg.LossProb, Src: rng}
	lost := loss.Rand() == 1

	// gonum's Gamma takes a rate, not a scale.
	jitter := distuv.Gamma{Alpha: cfg.Shape, Beta: 1 / cfg.ScaleMs, Src: rng}
	delayMs := cfg.BaseMs + jitter.Rand()

	if lost {
		return Result{Lost: true}, nil
	}
	return Result{Delay: time.Duration(delayMs * float64(time.Millisecond))}, nil
}

// streamSeed derives a per-order generator seed with a splitmix64-style
// mix of the run seed and the order id.
func streamSeed(seed, orderID uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15*(orderID+1)
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
