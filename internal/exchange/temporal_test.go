package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/topology"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/stretchr/testify/require"
)

func TestTemporal_SingleRankMatchesSyncAfterOneWindow(t *testing.T) {
	const gridN, workers, window = 8, 1, 3
	k := kernel.DefaultKernel()

	parts, mesh, fabric := buildMesh(t, gridN, workers)

	syncWs, err := workspace.New(parts[0].SliceSize(), 1)
	require.NoError(t, err)
	syncEx := NewSync(transport.NewLocal(fabric, 0), mesh, parts[0], k)

	tempWs, err := workspace.New(parts[0].SliceSize(), window)
	require.NoError(t, err)
	tempEx := NewTemporal(transport.NewLocal(fabric, 0), mesh, parts[0], k, window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < window; i++ {
		require.NoError(t, syncEx.Step(ctx, syncWs))
	}
	require.NoError(t, tempEx.Step(ctx, tempWs))

	n := parts[0].SliceSize()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			require.InDelta(t, syncWs.GetFront(x, y), tempWs.GetFront(x, y), 1e-9,
				"cell (%d,%d) diverged between one-step-at-a-time and one time-skewed window", x, y)
		}
	}
}

func TestOffsetFor_ShrinksByOnePerLocalIteration(t *testing.T) {
	require.Equal(t, 1, offsetFor(0))
	require.Equal(t, 2, offsetFor(1))
	require.Equal(t, 3, offsetFor(2))
}

func TestTemporal_DiagonalNeighborExchangeOnCornerRank(t *testing.T) {
	const gridN, workers, window = 8, 4, 2
	parts, mesh, fabric := buildMesh(t, gridN, workers)
	k := kernel.DefaultKernel()

	wss := make([]*workspace.Workspace, workers)
	exs := make([]*Temporal, workers)
	for r := 0; r < workers; r++ {
		ws, err := workspace.New(parts[r].SliceSize(), window)
		require.NoError(t, err)
		wss[r] = ws
		exs[r] = NewTemporal(transport.NewLocal(fabric, r), mesh, parts[r], k, window)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, workers)
	for r := 0; r < workers; r++ {
		go func(r int) { done <- exs[r].Step(ctx, wss[r]) }(r)
	}
	for r := 0; r < workers; r++ {
		require.NoError(t, <-done)
	}

	// Rank 0 sits at the bottom-left corner (row 0, col 0) of a 2x2 mesh;
	// its only diagonal neighbor is rank 3, one row up and one column right
	// (TopRight) under the row-major layout used here.
	diag := mesh.Neighbor(parts[0].Row, parts[0].Col, topology.TopRight)
	require.NotEqual(t, topology.NoNeighbor, diag)
}
