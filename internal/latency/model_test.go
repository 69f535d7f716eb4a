package latency

import (
	"testing"

	"latsim/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutes() map[model.Route]RouteConfig {
	return map[model.Route]RouteConfig{
		"colo":   {BaseMs: 0.5, Shape: 2.0, ScaleMs: 0.1, LossProb: 0},
		"retail": {BaseMs: 20.0, Shape: 2.0, ScaleMs: 5.0, LossProb: 0.3},
	}
}

func TestNewModel_RejectsBadParameters(t *testing.T) {
	tests := []struct {
		name   string
		routes map[model.Route]RouteConfig
	}{
		{"no routes", map[model.Route]RouteConfig{}},
		{"zero shape", map[model.Route]RouteConfig{
			"r": {Shape: 0, ScaleMs: 1},
		}},
		{"negative shape", map[model.Route]RouteConfig{
			"r": {Shape: -1, ScaleMs: 1},
		}},
		{"zero scale", map[model.Route]RouteConfig{
			"r": {Shape: 1, ScaleMs: 0},
		}},
		{"negative base", map[model.Route]RouteConfig{
			"r": {Shape: 1, ScaleMs: 1, BaseMs: -1},
		}},
		{"loss prob above one", map[model.Route]RouteConfig{
			"r": {Shape: 1, ScaleMs: 1, LossProb: 1.5},
		}},
		{"negative loss prob", map[model.Route]RouteConfig{
			"r": {Shape: 1, ScaleMs: 1, LossProb: -0.1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(42, tt.routes)
			assert.Error(t, err)
		})
	}
}

func TestResolve_UnknownRoute(t *testing.T) {
	m, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	_, err = m.Resolve(1, "carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestResolve_Reproducible(t *testing.T) {
	const n = 200

	first, err := NewModel(42, testRoutes())
	require.NoError(t, err)
	second, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	for i := model.OrderID(1); i <= n; i++ {
		a, err := first.Resolve(i, "retail")
		require.NoError(t, err)
		b, err := second.Resolve(i, "retail")
		require.NoError(t, err)
		assert.Equal(t, a, b, "order %d diverged", i)
	}
}

func TestResolve_DifferentSeedsDiffer(t *testing.T) {
	a, err := NewModel(42, testRoutes())
	require.NoError(t, err)
	b, err := NewModel(999, testRoutes())
	require.NoError(t, err)

	diverged := false
	for i := model.OrderID(1); i <= 50; i++ {
		ra, err := a.Resolve(i, "colo")
		require.NoError(t, err)
		rb, err := b.Resolve(i, "colo")
		require.NoError(t, err)
		if ra != rb {
			diverged = true
			break
		}
	}
	assert.True(t, diverged, "different seeds produced identical streams")
}

// The presence or absence of other orders must never perturb an order's
// own draws: each order has its own derived generator.
func TestResolve_PerOrderIsolation(t *testing.T) {
	m, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	alone, err := m.Resolve(7, "retail")
	require.NoError(t, err)

	// resolve a crowd of unrelated orders, then order 7 again
	for i := model.OrderID(100); i < 150; i++ {
		_, err := m.Resolve(i, "colo")
		require.NoError(t, err)
	}
	again, err := m.Resolve(7, "retail")
	require.NoError(t, err)

	assert.Equal(t, alone, again)
}

func TestResolve_CallOrderIndependent(t *testing.T) {
	m, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	forward := make([]Result, 0, 10)
	for i := model.OrderID(1); i <= 10; i++ {
		r, err := m.Resolve(i, "retail")
		require.NoError(t, err)
		forward = append(forward, r)
	}

	backward := make([]Result, 10)
	for i := model.OrderID(10); i >= 1; i-- {
		r, err := m.Resolve(i, "retail")
		require.NoError(t, err)
		backward[i-1] = r
	}

	assert.Equal(t, forward, backward)
}

func TestResolve_DelayIsPositiveAndAboveBase(t *testing.T) {
	m, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	for i := model.OrderID(1); i <= 100; i++ {
		r, err := m.Resolve(i, "colo")
		require.NoError(t, err)
		require.False(t, r.Lost) // colo has zero loss probability
		// base 0.5ms is the floor; gamma jitter only adds
		assert.GreaterOrEqual(t, r.Delay.Seconds()*1000, 0.5)
	}
}

func TestResolve_LossRateRoughlyMatches(t *testing.T) {
	m, err := NewModel(42, testRoutes())
	require.NoError(t, err)

	lost := 0
	const n = 2000
	for i := model.OrderID(1); i <= n; i++ {
		r, err := m.Resolve(i, "retail")
		require.NoError(t, err)
		if r.Lost {
			lost++
		}
	}
	rate := float64(lost) / n
	assert.InDelta(t, 0.3, rate, 0.05)
}
