// Package exchange implements the halo (ghost-cell) exchange between
// neighboring ranks, in three designs: a synchronous design that exchanges
// then computes, an asynchronous design that overlaps computation of
// interior cells with in-flight receives, and a temporal-blocking design
// that amortizes the exchange over several time steps by widening the
// halo.
package exchange

import (
	"context"
	"fmt"

	"github.com/latticeforge/stencilmesh/internal/compute"
	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/topology"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/collections"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

// Exchanger runs one iteration of a rank's sweep: refresh the halo from
// neighbors, apply the stencil kernel to the interior, and apply the
// Dirichlet boundary condition at any edge of the global domain the rank
// owns. Implementations differ in how much of this overlaps with
// in-flight messages.
type Exchanger interface {
	// Step advances the workspace by one iteration (or, for the temporal
	// design, by its configured window of iterations) and leaves Front
	// holding the new time step.
	Step(ctx context.Context, ws *workspace.Workspace) error

	// Close releases any resources (outstanding requests, pooled buffers)
	// held by the exchanger.
	Close() error
}

// tag encodes a halo message's direction into the transport.Message tag
// field. Every exchanger in this package uses the same scheme, so the
// designs share tag values: two exchangers of different designs running on
// one fabric for the same ranks would receive each other's messages.
func tag(dir topology.Direction) int { return int(dir) }

// neighbors resolves the rank id of every direction in dirs for (row, col),
// returning only the directions that have a live neighbor.
func neighbors(mesh *topology.Mesh, row, col int, dirs []topology.Direction) map[topology.Direction]int {
	all := mesh.Neighbors(row, col, dirs)
	live := make(map[topology.Direction]int, len(all))
	for d, r := range all {
		if r != topology.NoNeighbor {
			live[d] = r
		}
	}
	return live
}

// extractStrip copies the boundary strip of ws's front buffer facing
// direction dir into a pooled buffer of length n (the interior side).
func extractStrip(ws *workspace.Workspace, dir topology.Direction, n int) *[]float64 {
	buf := collections.GetFloat64Slice()
	*buf = (*buf)[:0]
	switch dir {
	case topology.Left:
		for y := 0; y < n; y++ {
			*buf = append(*buf, ws.GetFront(0, y))
		}
	case topology.Right:
		for y := 0; y < n; y++ {
			*buf = append(*buf, ws.GetFront(n-1, y))
		}
	case topology.Bottom:
		for x := 0; x < n; x++ {
			*buf = append(*buf, ws.GetFront(x, 0))
		}
	case topology.Top:
		for x := 0; x < n; x++ {
			*buf = append(*buf, ws.GetFront(x, n-1))
		}
	}
	return buf
}

// insertHalo writes a received strip into the halo cells just outside the
// boundary facing dir.
func insertHalo(ws *workspace.Workspace, dir topology.Direction, n int, strip []float64) {
	switch dir {
	case topology.Left:
		for y := 0; y < n; y++ {
			ws.SetFront(-1, y, strip[y])
		}
	case topology.Right:
		for y := 0; y < n; y++ {
			ws.SetFront(n, y, strip[y])
		}
	case topology.Bottom:
		for x := 0; x < n; x++ {
			ws.SetFront(x, -1, strip[x])
		}
	case topology.Top:
		for x := 0; x < n; x++ {
			ws.SetFront(x, n, strip[x])
		}
	}
}

// applyBoundary sets the Dirichlet boundary constant on any side of the
// workspace's halo that lies on the edge of the global domain (so it has
// no live neighbor to exchange with).
func applyBoundary(ws *workspace.Workspace, p *partition.Partitioner, k kernel.Kernel, n int) {
	if p.OnGlobalLeftEdge() {
		for y := -1; y <= n; y++ {
			ws.SetFront(-1, y, k.BoundaryTemp)
		}
	}
	if p.OnGlobalRightEdge() {
		for y := -1; y <= n; y++ {
			ws.SetFront(n, y, k.BoundaryTemp)
		}
	}
	if p.OnGlobalBottomEdge() {
		for x := -1; x <= n; x++ {
			ws.SetFront(x, -1, k.BoundaryTemp)
		}
	}
	if p.OnGlobalTopEdge() {
		for x := -1; x <= n; x++ {
			ws.SetFront(x, n, k.BoundaryTemp)
		}
	}
}

// sweepInterior applies the stencil equation to every interior cell in the
// rectangle [x0, x1) x [y0, y1), reading from front and writing to back,
// splitting the row range across workers via internal/compute once it's
// large enough to be worth it.
func sweepInterior(ws *workspace.Workspace, eq kernel.EquationFunc, x0, x1, y0, y1 int) {
	compute.Sweep(ws, eq, x0, x1, y0, y1)
}

func waitAll(ctx context.Context, reqs []transport.Request) error {
	for _, r := range reqs {
		if err := r.Wait(ctx); err != nil {
			return apperrors.Wrap(apperrors.CodeCommError, "waiting on halo request", err)
		}
	}
	return nil
}

func unsupportedVariant(name string) error {
	return apperrors.Wrap(apperrors.CodeUsageError, fmt.Sprintf("unsupported exchange variant %q", name), nil)
}
