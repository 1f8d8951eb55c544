// Package kernel holds the pluggable math the solver iterates: the source
// function evaluated once to seed the field, and the stencil equation
// applied to each interior cell's four neighbors every step.
package kernel

import "math"

// SourceFunc seeds a cell's initial value from its world coordinates.
type SourceFunc func(x, y float64) float64

// EquationFunc computes a cell's next value from its left, bottom, right
// and top neighbors. DefaultKernel uses the standard 4-point Jacobi
// average for the discrete Laplace equation.
type EquationFunc func(left, bottom, right, top float64) float64

// Kernel bundles the source and equation functions along with the
// Dirichlet boundary constant applied at the edges of the global domain.
type Kernel struct {
	Source       SourceFunc
	Equation     EquationFunc
	BoundaryTemp float64
}

// DefaultKernel returns the reference kernel on the unit square: the
// sin(pi*x)*sin(pi*y) initial field, Jacobi 4-point averaging, and a zero
// Dirichlet boundary.
func DefaultKernel() Kernel {
	return Kernel{
		Source:       SineSource,
		Equation:     Jacobi4Point,
		BoundaryTemp: 0.0,
	}
}

// ZeroSource seeds every interior cell to 0.
func ZeroSource(x, y float64) float64 { return 0 }

// SineSource is the reference initial field on the unit square,
// sin(pi*x)*sin(pi*y), zero along every edge of [0,1]x[0,1].
func SineSource(x, y float64) float64 {
	return math.Sin(math.Pi*x) * math.Sin(math.Pi*y)
}

// Jacobi4Point averages the four cardinal neighbors: the standard
// discretization of the 2D Laplace equation.
func Jacobi4Point(left, bottom, right, top float64) float64 {
	return (left + bottom + right + top) / 4
}
