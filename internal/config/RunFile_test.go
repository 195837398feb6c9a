package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/optimizer/internal/types"
)

const minimalRunYAML = `
space:
  dimensions:
    - name: lookback
      kind: integer
      low: 10
      high: 200
    - name: stop_atr_mult
      kind: continuous
      low: 0.5
      high: 5.0
run:
  seed: 42
`

// TestLoadRunFile_DefaultsFillUnsetFields verifies the file only needs
// to override what it cares about.
func TestLoadRunFile_DefaultsFillUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRunYAML), 0644))

	space, run, err := LoadRunFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, space.Dim())
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, DefaultRunConfig.Sampler, run.Sampler)
	assert.Equal(t, DefaultRunConfig.FidelityLadder, run.FidelityLadder)
	assert.Equal(t, DefaultRunConfig.MonteCarloPaths, run.MonteCarloPaths)
}

// TestLoadRunFile_RejectsInvalidSpace verifies space validation runs
// before the config is handed out.
func TestLoadRunFile_RejectsInvalidSpace(t *testing.T) {
	bad := `
space:
  dimensions:
    - name: lookback
      kind: integer
      low: 200
      high: 10
run:
  seed: 1
`
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0644))

	_, _, err := LoadRunFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameter space")
}

// TestLoadRunFile_RejectsInvalidRunValues verifies documented ranges are
// enforced on load.
func TestLoadRunFile_RejectsInvalidRunValues(t *testing.T) {
	bad := `
space:
  dimensions:
    - name: lookback
      kind: integer
      low: 10
      high: 200
run:
  lambda_drawdown: 0.1
`
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0644))

	_, _, err := LoadRunFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lambda_drawdown")
}

// TestLoadRunFile_MissingFile surfaces the read failure.
func TestLoadRunFile_MissingFile(t *testing.T) {
	_, _, err := LoadRunFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestRunConfigValidate_Ranges spot-checks the individual range guards.
func TestRunConfigValidate_Ranges(t *testing.T) {
	base := DefaultRunConfig

	cases := []struct {
		name   string
		mutate func(*types.RunConfig)
	}{
		{"bad sampler", func(c *types.RunConfig) { c.Sampler = "halton" }},
		{"sample count", func(c *types.RunConfig) { c.SampleCount = 5 }},
		{"empty ladder", func(c *types.RunConfig) { c.FidelityLadder = nil }},
		{"unordered ladder", func(c *types.RunConfig) { c.FidelityLadder = []int{30000, 10000} }},
		{"eta", func(c *types.RunConfig) { c.HalvingEta = 1 }},
		{"embargo factor", func(c *types.RunConfig) { c.EmbargoFactor = 1.0 }},
		{"worker fraction", func(c *types.RunConfig) { c.WorkerFraction = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base.Validate())
}
