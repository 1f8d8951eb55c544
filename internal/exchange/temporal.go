package exchange

import (
	"context"

	"github.com/latticeforge/stencilmesh/internal/compute"
	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/topology"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/collections"
)

// Temporal is Design C: time-skewing / temporal blocking. The workspace
// carries a border of width equal to the window W, so a rank can advance
// W local iterations using only the halo cells it already has, at the
// cost of each successive local iteration shrinking the region it can
// trust by one cell on every side (cells within i cells of the border are
// stale after i more local steps, since their stencil would need a halo
// value that has itself gone another step out of date). After W
// iterations the rank exchanges a halo of width W with its cardinal
// neighbors, and a single corner cell of width W-1 with its diagonal
// neighbors to keep the corner regions correct, then resumes.
//
// offsetFor is the amount the valid region shrinks on iteration i of the
// window (0-indexed).
type Temporal struct {
	layer  transport.Layer
	mesh   *topology.Mesh
	part   *partition.Partitioner
	k      kernel.Kernel
	window int

	iteration int
}

// NewTemporal builds a Design C exchanger with the given time-skewing
// window. The caller must size the workspace's border to window.
func NewTemporal(layer transport.Layer, mesh *topology.Mesh, part *partition.Partitioner, k kernel.Kernel, window int) *Temporal {
	return &Temporal{layer: layer, mesh: mesh, part: part, k: k, window: window}
}

// offsetFor returns how many cells the trustworthy region has shrunk by
// after completing local iteration i (0-indexed) of the window, i.e. the
// effective border width already consumed.
func offsetFor(i int) int { return i + 1 }

func (t *Temporal) Step(ctx context.Context, ws *workspace.Workspace) error {
	n := t.part.SliceSize()
	border := ws.BorderWidth()

	// The Dirichlet constant never changes, so any global-domain edge this
	// rank owns gets its full border depth filled once per window rather
	// than re-derived every local iteration; only the inter-rank halo
	// actually goes stale as the window advances.
	fillGlobalEdges(ws, t.part, t.k, n, border)

	for i := 0; i < t.window; i++ {
		shrink := offsetFor(i)
		lo, hi := -(border-shrink), n+(border-shrink)
		sweepInteriorClipped(ws, t.part, t.k, lo, hi, lo, hi, n)
		ws.Swap()
		t.iteration++
	}

	if err := t.exchangeHalo(ctx, ws, n, border); err != nil {
		return err
	}
	return nil
}

// fillGlobalEdges sets every halo cell on a global-domain edge to the
// Dirichlet constant, to the workspace's full border depth, since those
// cells have no neighbor to exchange with and their value is time-invariant.
func fillGlobalEdges(ws *workspace.Workspace, p *partition.Partitioner, k kernel.Kernel, n, border int) {
	if p.OnGlobalLeftEdge() {
		for b := 1; b <= border; b++ {
			for y := -border; y < n+border; y++ {
				ws.SetFront(-b, y, k.BoundaryTemp)
			}
		}
	}
	if p.OnGlobalRightEdge() {
		for b := 0; b < border; b++ {
			for y := -border; y < n+border; y++ {
				ws.SetFront(n+b, y, k.BoundaryTemp)
			}
		}
	}
	if p.OnGlobalBottomEdge() {
		for b := 1; b <= border; b++ {
			for x := -border; x < n+border; x++ {
				ws.SetFront(x, -b, k.BoundaryTemp)
			}
		}
	}
	if p.OnGlobalTopEdge() {
		for b := 0; b < border; b++ {
			for x := -border; x < n+border; x++ {
				ws.SetFront(x, n+b, k.BoundaryTemp)
			}
		}
	}
}

// sweepInteriorClipped applies the stencil equation over [x0,x1) x [y0,y1),
// skipping any cell that lies exactly on a global-domain edge this rank
// owns: those cells are fixed at the Dirichlet constant and are never
// recomputed, even though the window's expanded sweep range would
// otherwise reach them.
func sweepInteriorClipped(ws *workspace.Workspace, p *partition.Partitioner, k kernel.Kernel, x0, x1, y0, y1, n int) {
	onEdge := func(x, y, n int) bool {
		return (p.OnGlobalLeftEdge() && x < 0) ||
			(p.OnGlobalRightEdge() && x >= n) ||
			(p.OnGlobalBottomEdge() && y < 0) ||
			(p.OnGlobalTopEdge() && y >= n)
	}
	compute.SweepClipped(ws, k.Equation, x0, x1, y0, y1, n, onEdge, k.BoundaryTemp)
}

// exchangeHalo refreshes the full-width border from the 4 cardinal
// neighbors and the single corner cell from each of the 4 diagonal
// neighbors, using request-set tracking bounded to the 8-direction case.
func (t *Temporal) exchangeHalo(ctx context.Context, ws *workspace.Workspace, n, border int) error {
	live := neighbors(t.mesh, t.part.Row, t.part.Col, topology.Diagonal)
	pending := collections.NewBitset(len(topology.Diagonal))

	sendBufs := make([]*[]float64, 0, len(live))
	sendReqs := make([]transport.Request, 0, len(live))
	for dir, peer := range live {
		payload := extractWideStrip(ws, dir, n, border)
		req, err := t.layer.ISend(ctx, transport.Message{To: peer, Tag: tag(opposite(dir)), Iteration: t.iteration, Payload: *payload})
		if err != nil {
			return err
		}
		sendReqs = append(sendReqs, req)
		sendBufs = append(sendBufs, payload)
	}

	recvReqs := make(map[topology.Direction]transport.Request, len(live))
	for dir, peer := range live {
		req, err := t.layer.IRecv(ctx, peer, tag(dir))
		if err != nil {
			return err
		}
		recvReqs[dir] = req
		pending.Set(int(dir))
	}
	for dir, req := range recvReqs {
		if err := req.Wait(ctx); err != nil {
			return err
		}
		insertWideHalo(ws, dir, n, border, req.Result().Payload)
		pending.Clear(int(dir))
	}
	if err := waitAll(ctx, sendReqs); err != nil {
		return err
	}
	for _, buf := range sendBufs {
		collections.PutFloat64Slice(buf)
	}
	return nil
}

// extractWideStrip copies the full border-width boundary strip for a
// cardinal direction, or the single corner cell for a diagonal direction.
func extractWideStrip(ws *workspace.Workspace, dir topology.Direction, n, border int) *[]float64 {
	buf := collections.GetFloat64Slice()
	*buf = (*buf)[:0]
	switch dir {
	case topology.Left:
		for b := 0; b < border; b++ {
			for y := 0; y < n; y++ {
				*buf = append(*buf, ws.GetFront(b, y))
			}
		}
	case topology.Right:
		for b := 0; b < border; b++ {
			for y := 0; y < n; y++ {
				*buf = append(*buf, ws.GetFront(n-1-b, y))
			}
		}
	case topology.Bottom:
		for b := 0; b < border; b++ {
			for x := 0; x < n; x++ {
				*buf = append(*buf, ws.GetFront(x, b))
			}
		}
	case topology.Top:
		for b := 0; b < border; b++ {
			for x := 0; x < n; x++ {
				*buf = append(*buf, ws.GetFront(x, n-1-b))
			}
		}
	case topology.TopLeft:
		*buf = append(*buf, ws.GetFront(0, n-1))
	case topology.TopRight:
		*buf = append(*buf, ws.GetFront(n-1, n-1))
	case topology.BottomLeft:
		*buf = append(*buf, ws.GetFront(0, 0))
	case topology.BottomRight:
		*buf = append(*buf, ws.GetFront(n-1, 0))
	}
	return buf
}

// insertWideHalo is extractWideStrip's receiving counterpart: it writes a
// full border-width strip (or single corner value) into the halo.
func insertWideHalo(ws *workspace.Workspace, dir topology.Direction, n, border int, strip []float64) {
	switch dir {
	case topology.Left:
		idx := 0
		for b := 0; b < border; b++ {
			for y := 0; y < n; y++ {
				ws.SetFront(-1-b, y, strip[idx])
				idx++
			}
		}
	case topology.Right:
		idx := 0
		for b := 0; b < border; b++ {
			for y := 0; y < n; y++ {
				ws.SetFront(n+b, y, strip[idx])
				idx++
			}
		}
	case topology.Bottom:
		idx := 0
		for b := 0; b < border; b++ {
			for x := 0; x < n; x++ {
				ws.SetFront(x, -1-b, strip[idx])
				idx++
			}
		}
	case topology.Top:
		idx := 0
		for b := 0; b < border; b++ {
			for x := 0; x < n; x++ {
				ws.SetFront(x, n+b, strip[idx])
				idx++
			}
		}
	case topology.TopLeft:
		ws.SetFront(-1, n, strip[0])
	case topology.TopRight:
		ws.SetFront(n, n, strip[0])
	case topology.BottomLeft:
		ws.SetFront(-1, -1, strip[0])
	case topology.BottomRight:
		ws.SetFront(n, -1, strip[0])
	}
}

func (t *Temporal) Close() error { return nil }
