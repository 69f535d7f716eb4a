package config

import (
	"os"
	"path/filepath"
	"testing"

	"latsim/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "latsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
simulation:
  seed: 7
  horizon_ms: 5000
routes:
  colo:
    base_ms: 0.5
    gamma_shape: 2.0
    gamma_scale_ms: 0.1
  wifi:
    base_ms: 10.0
    gamma_shape: 2.0
    gamma_scale_ms: 5.0
    loss_prob: 0.02
stream:
  enabled: true
  addr: "127.0.0.1:9000"
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, model.Time(5_000_000_000), cfg.Horizon())
	assert.Equal(t, 0.01, cfg.Simulation.PriceTick) // default survives
	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Stream.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	routes := cfg.LatencyRoutes()
	require.Contains(t, routes, model.Route("wifi"))
	assert.Equal(t, 0.02, routes["wifi"].LossProb)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative horizon", "simulation:\n  horizon_ms: -1\n"},
		{"zero tick", "simulation:\n  price_tick: 0\n"},
		{"zero lot", "simulation:\n  lot_size: -2\n"},
		{"not yaml", "{{{{\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRequiresRoutes(t *testing.T) {
	cfg := Default()
	cfg.Routes = nil
	assert.Error(t, cfg.Validate())
}
