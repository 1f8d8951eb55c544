// Package compute applies the stencil equation across a rank's workspace,
// splitting the row range across goroutines via pkg/parallel.ChunkProcessor
// the same way it splits any large slice for CPU-bound work.
package compute

import (
	"context"

	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/parallel"
)

// minParallelRows is the row-count floor below which chunking overhead would
// outweigh the benefit; small sweeps (a single border ring, a narrow corner
// ring) just run inline.
const minParallelRows = 32

// Sweep applies eq to every cell in [x0,x1) x [y0,y1), reading ws.Front and
// writing ws.Back. Rows never overlap, so each worker owns a contiguous row
// range with no cross-chunk synchronization, exactly the shape
// ChunkProcessor.ProcessChunks was built for.
func Sweep(ws *workspace.Workspace, eq kernel.EquationFunc, x0, x1, y0, y1 int) {
	width := x1 - x0
	if width <= 0 || y1 <= y0 {
		return
	}
	if width < minParallelRows {
		sweepRows(ws, eq, x0, x1, y0, y1)
		return
	}

	rows := make([]int, width)
	for i := range rows {
		rows[i] = x0 + i
	}

	processor := parallel.NewChunkProcessor[int, struct{}](parallel.DefaultPoolConfig())
	processor.ProcessChunks(
		context.Background(),
		rows,
		func(ctx context.Context, chunk []int, workerID int) struct{} {
			for _, x := range chunk {
				sweepRows(ws, eq, x, x+1, y0, y1)
			}
			return struct{}{}
		},
		func(results []struct{}) struct{} { return struct{}{} },
	)
}

// SweepClipped applies eq to every cell in [x0,x1) x [y0,y1), same as Sweep,
// except cells outside [0,n) on either axis are treated by edge instead of
// being read through the stencil: onEdge decides whether (x,y) sits on a
// cell the caller wants written directly rather than computed, and edgeValue
// supplies that value. Used by the temporal design, where the halo-extended
// sweep range includes cells that must hold the Dirichlet constant rather
// than a computed value.
func SweepClipped(ws *workspace.Workspace, eq kernel.EquationFunc, x0, x1, y0, y1, n int, onEdge func(x, y, n int) bool, edgeValue float64) {
	for x := x0; x < x1; x++ {
		for y := y0; y < y1; y++ {
			if onEdge(x, y, n) {
				ws.SetBack(x, y, edgeValue)
				continue
			}
			ws.SetBack(x, y, eq(
				ws.GetFront(x-1, y),
				ws.GetFront(x, y-1),
				ws.GetFront(x+1, y),
				ws.GetFront(x, y+1),
			))
		}
	}
}

func sweepRows(ws *workspace.Workspace, eq kernel.EquationFunc, x0, x1, y0, y1 int) {
	for x := x0; x < x1; x++ {
		for y := y0; y < y1; y++ {
			ws.SetBack(x, y, eq(
				ws.GetFront(x-1, y),
				ws.GetFront(x, y-1),
				ws.GetFront(x+1, y),
				ws.GetFront(x, y+1),
			))
		}
	}
}
