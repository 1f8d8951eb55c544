package exchange

import (
	"context"

	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/topology"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/collections"
)

// Async is Design B, the default: post non-blocking sends and receives for
// the halo, immediately compute the "innies" (interior cells at least one
// cell away from every border, which never read a halo value), and only
// then wait on the receives before computing the "outies" (the ring of
// cells adjacent to the border, which do read the halo). This overlaps the
// network round trip with useful work instead of blocking on it up front.
type Async struct {
	layer transport.Layer
	mesh  *topology.Mesh
	part  *partition.Partitioner
	k     kernel.Kernel

	// pending tracks which of the (up to 4) posted receives are still
	// outstanding, bounded to the cardinal directions.
	pending *collections.Bitset

	iteration int
}

// NewAsync builds a Design B exchanger for one rank.
func NewAsync(layer transport.Layer, mesh *topology.Mesh, part *partition.Partitioner, k kernel.Kernel) *Async {
	return &Async{
		layer:   layer,
		mesh:    mesh,
		part:    part,
		k:       k,
		pending: collections.NewBitset(len(topology.Cardinal)),
	}
}

func (a *Async) Step(ctx context.Context, ws *workspace.Workspace) error {
	n := a.part.SliceSize()
	live := neighbors(a.mesh, a.part.Row, a.part.Col, topology.Cardinal)

	sendBufs := make([]*[]float64, 0, len(live))
	sendReqs := make([]transport.Request, 0, len(live))
	for dir, peer := range live {
		strip := extractStrip(ws, dir, n)
		req, err := a.layer.ISend(ctx, transport.Message{To: peer, Tag: tag(opposite(dir)), Iteration: a.iteration, Payload: *strip})
		if err != nil {
			return err
		}
		sendReqs = append(sendReqs, req)
		sendBufs = append(sendBufs, strip)
	}

	recvReqs := make(map[topology.Direction]transport.Request, len(live))
	a.pending.ClearAll()
	for dir, peer := range live {
		req, err := a.layer.IRecv(ctx, peer, tag(dir))
		if err != nil {
			return err
		}
		recvReqs[dir] = req
		a.pending.Set(int(dir))
	}

	// Innies: the sub-rectangle strictly inside the border-adjacent ring.
	// For n <= 2 there is no such interior, and the whole slice is border-
	// adjacent; the inner sweep below then does nothing and the outer ring
	// sweep covers every cell once the halo arrives.
	if n > 2 {
		sweepInterior(ws, a.k.Equation, 1, n-1, 1, n-1)
	}

	if err := waitAll(ctx, recvReqs2slice(recvReqs)); err != nil {
		return err
	}
	for dir, req := range recvReqs {
		insertHalo(ws, dir, n, req.Result().Payload)
		a.pending.Clear(int(dir))
	}
	if err := waitAll(ctx, sendReqs); err != nil {
		return err
	}
	for _, buf := range sendBufs {
		collections.PutFloat64Slice(buf)
	}

	applyBoundary(ws, a.part, a.k, n)
	sweepOuterRing(ws, a.k.Equation, n)

	ws.CopyInteriorBackToFront()
	ws.Swap()

	a.iteration++
	return nil
}

func recvReqs2slice(m map[topology.Direction]transport.Request) []transport.Request {
	out := make([]transport.Request, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

// sweepOuterRing applies the stencil equation to the ring of cells adjacent
// to the slice's border (row 0, row n-1, col 0, col n-1), the only cells
// whose stencil reads a halo value. For n <= 2 every cell is in the ring.
func sweepOuterRing(ws *workspace.Workspace, eq kernel.EquationFunc, n int) {
	apply := func(x, y int) {
		ws.SetBack(x, y, eq(
			ws.GetFront(x-1, y),
			ws.GetFront(x, y-1),
			ws.GetFront(x+1, y),
			ws.GetFront(x, y+1),
		))
	}
	for x := 0; x < n; x++ {
		apply(x, 0)
		if n > 1 {
			apply(x, n-1)
		}
	}
	for y := 1; y < n-1; y++ {
		apply(0, y)
		if n > 1 {
			apply(n-1, y)
		}
	}
}

func (a *Async) Close() error { return nil }
