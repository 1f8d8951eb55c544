// Package workspace implements the double-buffered scalar field each rank
// iterates on: a front buffer holding the current time step and a back
// buffer being written by the next sweep, addressed through a flat array
// with halo padding around the interior slice.
package workspace

import (
	"fmt"

	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

// Workspace holds one rank's front and back buffers for an n x n interior
// slice padded with border cells of width border on every side. Cell (x, y)
// uses 0-indexed interior coordinates; x and y may range over
// [-border, n+border-1] to reach halo cells.
//
// Addressing is flat: index(x, y) = outer*(border+x) + (border+y),
// so strip copies into and out of the halo are simple contiguous or
// strided slices.
type Workspace struct {
	n      int // interior slice side length
	border int // halo width: 1 for sync/async, T for the temporal-blocking design
	outer  int // n + 2*border

	front []float64
	back  []float64
}

// New allocates a workspace for an n x n interior slice with the given
// border width. The halo region is uninitialized; the caller fills it via
// an initial exchange or boundary evaluation before the first sweep.
func New(n, border int) (*Workspace, error) {
	if n <= 0 || border <= 0 {
		return nil, apperrors.Wrap(apperrors.CodeResourceErr, fmt.Sprintf("invalid workspace dimensions n=%d border=%d", n, border), nil)
	}
	outer := n + 2*border
	size := outer * outer
	return &Workspace{
		n:      n,
		border: border,
		outer:  outer,
		front:  make([]float64, size),
		back:   make([]float64, size),
	}, nil
}

// InnerSize returns n, the interior slice side length.
func (w *Workspace) InnerSize() int { return w.n }

// BorderWidth returns the halo padding width.
func (w *Workspace) BorderWidth() int { return w.border }

// OuterSize returns n + 2*border, the padded buffer side length.
func (w *Workspace) OuterSize() int { return w.outer }

// index converts local coordinates (x, y) into a flat buffer offset.
func (w *Workspace) index(x, y int) int {
	return w.outer*(w.border+x) + (w.border + y)
}

// Front returns the current-time-step buffer, read-only by convention: the
// interior sweep reads from Front and writes to Back.
func (w *Workspace) Front() []float64 { return w.front }

// Back returns the next-time-step buffer being written by the interior and
// boundary sweeps.
func (w *Workspace) Back() []float64 { return w.back }

// GetFront reads cell (x, y) from the front buffer.
func (w *Workspace) GetFront(x, y int) float64 {
	return w.front[w.index(x, y)]
}

// SetFront writes cell (x, y) in the front buffer. Used only during
// initialization and by the halo exchanger writing received ghost rows.
func (w *Workspace) SetFront(x, y int, v float64) {
	w.front[w.index(x, y)] = v
}

// GetBack reads cell (x, y) from the back buffer.
func (w *Workspace) GetBack(x, y int) float64 {
	return w.back[w.index(x, y)]
}

// SetBack writes cell (x, y) in the back buffer. This is what the interior
// and boundary stencil sweeps call.
func (w *Workspace) SetBack(x, y int, v float64) {
	w.back[w.index(x, y)] = v
}

// Swap exchanges the logical roles of front and back. No data is copied:
// the slice headers are swapped, so the buffer that was back a moment ago
// becomes the new front in O(1), preserving the buffer role invariant that
// callers never hold a stale reference across a swap (they re-fetch Front
// and Back from the Workspace each iteration instead of caching the slice).
func (w *Workspace) Swap() {
	w.front, w.back = w.back, w.front
}

// FillFront evaluates f at every cell of the front buffer, including the
// halo region, useful for setting the initial field via a source function.
func (w *Workspace) FillFront(f func(x, y int) float64) {
	for x := -w.border; x < w.n+w.border; x++ {
		for y := -w.border; y < w.n+w.border; y++ {
			w.SetFront(x, y, f(x, y))
		}
	}
}

// CopyInteriorBackToFront copies only the interior (non-halo) region of
// back into front, leaving front's existing halo untouched. Used after a
// sweep that updated just the interior before the halo exchange refreshes
// the border separately.
func (w *Workspace) CopyInteriorBackToFront() {
	for x := 0; x < w.n; x++ {
		for y := 0; y < w.n; y++ {
			w.SetFront(x, y, w.GetBack(x, y))
		}
	}
}
