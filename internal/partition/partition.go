// Package partition computes a rank's slice of the global grid from the
// worker count and rank id alone: row/column position in the square mesh,
// slice side length, and the step size and world-coordinate offset used to
// evaluate the boundary and source functions at the right physical point.
package partition

import (
	"fmt"

	"github.com/latticeforge/stencilmesh/pkg/config"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

// Partitioner describes one rank's slice of an N x N grid decomposed across
// an S x S mesh of workers.
type Partitioner struct {
	N int // global grid side length
	S int // mesh side length, S*S == Workers
	n int // this rank's slice side length, N/S

	Rank int
	Row  int // 0..S-1, this rank's row in the mesh
	Col  int // 0..S-1, this rank's column in the mesh

	H float64 // step size, 1/(N+1)
}

// New builds a Partitioner for cfg, assuming cfg has already passed
// config.RunConfig.Validate (non-square worker counts and indivisible
// grids are rejected there, before any rank starts computing).
func New(cfg *config.RunConfig) (*Partitioner, error) {
	s := config.MeshSide(cfg.Workers)
	if s*s != cfg.Workers {
		return nil, apperrors.ErrNonSquareWorkerCount
	}
	if cfg.N%s != 0 {
		return nil, apperrors.ErrIndivisibleGrid
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Workers {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("rank %d out of range", cfg.Rank), apperrors.ErrMalformedCLI)
	}

	row, col := RankToGridPos(cfg.Rank, s)
	return &Partitioner{
		N:    cfg.N,
		S:    s,
		n:    cfg.N / s,
		Rank: cfg.Rank,
		Row:  row,
		Col:  col,
		H:    1.0 / float64(cfg.N+1),
	}, nil
}

// RankToGridPos converts a linear rank id into (row, col) in a mesh whose
// side is s, row-major: rank = row*s + col.
func RankToGridPos(rank, s int) (row, col int) {
	return rank / s, rank % s
}

// GridPosToRank is the inverse of RankToGridPos.
func GridPosToRank(row, col, s int) int {
	return row*s + col
}

// SliceSize returns n, the side length of this rank's square slice of the
// global grid.
func (p *Partitioner) SliceSize() int {
	return p.n
}

// WorldOffset returns the global grid index of local cell (0,0) within this
// rank's slice, i.e. the offset to add to a local index before evaluating a
// world-coordinate function like a boundary or source term.
func (p *Partitioner) WorldOffset() (offsetX, offsetY int) {
	return p.Col * p.n, p.Row * p.n
}

// WorldCoord converts a local 0-indexed cell position (lx, ly) within this
// rank's interior slice into world coordinates (x, y) in [0,1]x[0,1], as
// h times (the cell's global grid index + 1), so the first interior cell
// sits one step h in from the domain boundary.
func (p *Partitioner) WorldCoord(lx, ly int) (x, y float64) {
	offX, offY := p.WorldOffset()
	return float64(offX+lx+1) * p.H, float64(offY+ly+1) * p.H
}

// OnGlobalLeftEdge reports whether this rank's slice touches the global
// domain's left edge (col 0), where Dirichlet boundary values apply instead
// of a halo from a neighbor.
func (p *Partitioner) OnGlobalLeftEdge() bool { return p.Col == 0 }

// OnGlobalRightEdge reports whether this rank's slice touches the global
// domain's right edge.
func (p *Partitioner) OnGlobalRightEdge() bool { return p.Col == p.S-1 }

// OnGlobalTopEdge reports whether this rank's slice touches the global
// domain's top edge (row S-1).
func (p *Partitioner) OnGlobalTopEdge() bool { return p.Row == p.S-1 }

// OnGlobalBottomEdge reports whether this rank's slice touches the global
// domain's bottom edge (row 0).
func (p *Partitioner) OnGlobalBottomEdge() bool { return p.Row == 0 }
