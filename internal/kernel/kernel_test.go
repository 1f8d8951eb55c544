package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJacobi4Point_AverageOfUniformNeighborsIsUnchanged(t *testing.T) {
	assert.Equal(t, 1.0, Jacobi4Point(1, 1, 1, 1))
}

func TestJacobi4Point(t *testing.T) {
	got := Jacobi4Point(1, 2, 3, 4)
	assert.Equal(t, 2.5, got)
}

func TestZeroSource(t *testing.T) {
	assert.Equal(t, 0.0, ZeroSource(0.3, 0.7))
}

func TestSineSource(t *testing.T) {
	assert.InDelta(t, 1.0, SineSource(0.5, 0.5), 1e-9)
	assert.InDelta(t, 0.0, SineSource(0.0, 0.5), 1e-9)
	assert.InDelta(t, 0.0, SineSource(1.0, 0.5), 1e-9)
	assert.InDelta(t, math.Sin(math.Pi*0.25)*math.Sin(math.Pi*0.75), SineSource(0.25, 0.75), 1e-9)
}

func TestDefaultKernel(t *testing.T) {
	k := DefaultKernel()
	assert.Equal(t, 0.0, k.BoundaryTemp)
	assert.InDelta(t, math.Sin(math.Pi*0.1)*math.Sin(math.Pi*0.2), k.Source(0.1, 0.2), 1e-9)
	assert.Equal(t, 2.5, k.Equation(1, 2, 3, 4))
}
