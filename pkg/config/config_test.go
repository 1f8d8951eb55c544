package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 40, cfg.N)
	assert.Equal(t, 400, cfg.TimeSteps)
	assert.False(t, cfg.OutputEnabled)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, VariantAsync, cfg.Variant)
	assert.Equal(t, 25, cfg.DumpEvery)
}

func TestLoadFromReader_CustomValues(t *testing.T) {
	content := []byte(`
n: 100
time_steps: 50
workers: 4
rank: 2
variant: temporal
window: 8
dump_every: 10
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.N)
	assert.Equal(t, 50, cfg.TimeSteps)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2, cfg.Rank)
	assert.Equal(t, VariantTemporal, cfg.Variant)
	assert.Equal(t, 8, cfg.Window)
	assert.Equal(t, 10, cfg.DumpEvery)
}

func TestValidate_NonSquareWorkerCount(t *testing.T) {
	cfg := &RunConfig{N: 40, TimeSteps: 10, Workers: 5, Variant: VariantAsync}
	err := cfg.Validate()
	assert.ErrorIs(t, err, apperrors.ErrNonSquareWorkerCount)
}

func TestValidate_IndivisibleGrid(t *testing.T) {
	cfg := &RunConfig{N: 41, TimeSteps: 10, Workers: 4, Variant: VariantAsync}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RankOutOfRange(t *testing.T) {
	cfg := &RunConfig{N: 40, TimeSteps: 10, Workers: 4, Rank: 4, Variant: VariantAsync}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_UnknownVariant(t *testing.T) {
	cfg := &RunConfig{N: 40, TimeSteps: 10, Workers: 4, Variant: "bogus"}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_TemporalRequiresWindow(t *testing.T) {
	cfg := &RunConfig{N: 40, TimeSteps: 10, Workers: 4, Variant: VariantTemporal, Window: 0}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_Valid(t *testing.T) {
	cfg := &RunConfig{N: 40, TimeSteps: 10, Workers: 4, Variant: VariantAsync}
	assert.NoError(t, cfg.Validate())
}

func TestMeshSide(t *testing.T) {
	assert.Equal(t, 1, MeshSide(1))
	assert.Equal(t, 2, MeshSide(4))
	assert.Equal(t, 3, MeshSide(9))
	assert.Equal(t, 0, MeshSide(8))
}

func TestEnsureDumpDir(t *testing.T) {
	dir := t.TempDir() + "/dumps"
	cfg := &RunConfig{DumpDir: dir}
	require.NoError(t, cfg.EnsureDumpDir())
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
