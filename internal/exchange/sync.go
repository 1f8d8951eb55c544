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

// Sync is Design A: post every halo send and receive, wait for all of them
// to complete, then sweep the whole interior in one pass. It is the
// simplest design and the one the other two are checked for equivalence
// against, since waiting for the full halo before computing anything
// removes any question of operation ordering.
type Sync struct {
	layer transport.Layer
	mesh  *topology.Mesh
	part  *partition.Partitioner
	k     kernel.Kernel

	iteration int
}

// NewSync builds a Design A exchanger for one rank.
func NewSync(layer transport.Layer, mesh *topology.Mesh, part *partition.Partitioner, k kernel.Kernel) *Sync {
	return &Sync{layer: layer, mesh: mesh, part: part, k: k}
}

func (s *Sync) Step(ctx context.Context, ws *workspace.Workspace) error {
	n := s.part.SliceSize()
	live := neighbors(s.mesh, s.part.Row, s.part.Col, topology.Cardinal)

	sendReqs := make([]transport.Request, 0, len(live))
	sendBufs := make([]*[]float64, 0, len(live))
	for dir, peer := range live {
		strip := extractStrip(ws, dir, n)
		req, err := s.layer.ISend(ctx, transport.Message{To: peer, Tag: tag(opposite(dir)), Iteration: s.iteration, Payload: *strip})
		if err != nil {
			return err
		}
		sendReqs = append(sendReqs, req)
		sendBufs = append(sendBufs, strip)
	}

	recvReqs := make(map[topology.Direction]transport.Request, len(live))
	for dir, peer := range live {
		req, err := s.layer.IRecv(ctx, peer, tag(dir))
		if err != nil {
			return err
		}
		recvReqs[dir] = req
	}

	for dir, req := range recvReqs {
		if err := req.Wait(ctx); err != nil {
			return err
		}
		insertHalo(ws, dir, n, req.Result().Payload)
	}
	for _, req := range sendReqs {
		if err := req.Wait(ctx); err != nil {
			return err
		}
	}
	for _, buf := range sendBufs {
		collections.PutFloat64Slice(buf)
	}

	applyBoundary(ws, s.part, s.k, n)
	sweepInterior(ws, s.k.Equation, 0, n, 0, n)
	ws.CopyInteriorBackToFront()
	ws.Swap()

	s.iteration++
	return nil
}

func (s *Sync) Close() error { return nil }

// opposite returns the direction a neighbor sees this message arrive from,
// since LEFT for the sender is RIGHT for the receiver and so on. Tagging
// sends with the opposite direction means both sides use their own
// "which side is this halo for" label as the tag, rather than needing a
// shared handshake.
func opposite(dir topology.Direction) topology.Direction {
	switch dir {
	case topology.Left:
		return topology.Right
	case topology.Right:
		return topology.Left
	case topology.Top:
		return topology.Bottom
	case topology.Bottom:
		return topology.Top
	case topology.TopLeft:
		return topology.BottomRight
	case topology.BottomRight:
		return topology.TopLeft
	case topology.TopRight:
		return topology.BottomLeft
	case topology.BottomLeft:
		return topology.TopRight
	default:
		return dir
	}
}
