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
	cfg "github.com/latticeforge/stencilmesh/pkg/config"
	"github.com/stretchr/testify/require"
)

// buildMesh constructs S*S partitioners, a shared topology mesh, and a
// local transport fabric for an N x N grid split across an S x S worker
// mesh, the fixture every exchanger test in this package shares.
func buildMesh(t *testing.T, gridN, workers int) ([]*partition.Partitioner, *topology.Mesh, *transport.Fabric) {
	t.Helper()
	parts := make([]*partition.Partitioner, workers)
	mesh := topology.NewMesh(cfg.MeshSide(workers))
	fabric := transport.NewFabric(workers)
	for r := 0; r < workers; r++ {
		c := &cfg.RunConfig{N: gridN, Workers: workers, Rank: r}
		p, err := partition.New(c)
		require.NoError(t, err)
		parts[r] = p
	}
	return parts, mesh, fabric
}

func TestSync_TwoByTwoMeshConvergesTowardBoundaryConstant(t *testing.T) {
	const gridN, workers = 8, 4
	parts, mesh, fabric := buildMesh(t, gridN, workers)
	// A constant, non-zero boundary on a zero initial field exercises the
	// general convergence behavior independent of the zero-boundary
	// reference kernel used by DefaultKernel.
	k := kernel.Kernel{Source: kernel.ZeroSource, Equation: kernel.Jacobi4Point, BoundaryTemp: 1.0}

	wss := make([]*workspace.Workspace, workers)
	exs := make([]*Sync, workers)
	for r := 0; r < workers; r++ {
		ws, err := workspace.New(parts[r].SliceSize(), 1)
		require.NoError(t, err)
		ws.FillFront(func(x, y int) float64 { return 0 })
		wss[r] = ws
		exs[r] = NewSync(transport.NewLocal(fabric, r), mesh, parts[r], k)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for step := 0; step < 20; step++ {
		done := make(chan error, workers)
		for r := 0; r < workers; r++ {
			go func(r int) { done <- exs[r].Step(ctx, wss[r]) }(r)
		}
		for r := 0; r < workers; r++ {
			require.NoError(t, <-done)
		}
	}

	n := parts[0].SliceSize()
	for r := 0; r < workers; r++ {
		center := wss[r].GetFront(n/2, n/2)
		require.InDelta(t, k.BoundaryTemp, center, 0.35, "rank %d should be trending toward the boundary constant", r)
	}
}

func TestAsync_MatchesSyncAfterEqualSteps(t *testing.T) {
	const gridN, workers = 8, 4
	k := kernel.DefaultKernel()

	runSteps := func(newExchanger func(layer transport.Layer, mesh *topology.Mesh, p *partition.Partitioner) Exchanger) []*workspace.Workspace {
		parts, mesh, fabric := buildMesh(t, gridN, workers)
		wss := make([]*workspace.Workspace, workers)
		exs := make([]Exchanger, workers)
		for r := 0; r < workers; r++ {
			ws, err := workspace.New(parts[r].SliceSize(), 1)
			require.NoError(t, err)
			wss[r] = ws
			exs[r] = newExchanger(transport.NewLocal(fabric, r), mesh, parts[r])
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for step := 0; step < 10; step++ {
			done := make(chan error, workers)
			for r := 0; r < workers; r++ {
				go func(r int) { done <- exs[r].Step(ctx, wss[r]) }(r)
			}
			for r := 0; r < workers; r++ {
				require.NoError(t, <-done)
			}
		}
		return wss
	}

	syncResult := runSteps(func(layer transport.Layer, mesh *topology.Mesh, p *partition.Partitioner) Exchanger {
		return NewSync(layer, mesh, p, k)
	})
	asyncResult := runSteps(func(layer transport.Layer, mesh *topology.Mesh, p *partition.Partitioner) Exchanger {
		return NewAsync(layer, mesh, p, k)
	})

	n := gridN / cfg.MeshSide(workers)
	for r := 0; r < workers; r++ {
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				require.InDelta(t, syncResult[r].GetFront(x, y), asyncResult[r].GetFront(x, y), 1e-9,
					"rank %d cell (%d,%d) diverged between sync and async designs", r, x, y)
			}
		}
	}
}

func TestSync_SingleRankHasNoNeighborsAndStillConverges(t *testing.T) {
	const gridN, workers = 4, 1
	parts, mesh, fabric := buildMesh(t, gridN, workers)
	k := kernel.Kernel{Source: kernel.ZeroSource, Equation: kernel.Jacobi4Point, BoundaryTemp: 1.0}

	ws, err := workspace.New(parts[0].SliceSize(), 1)
	require.NoError(t, err)
	ex := NewSync(transport.NewLocal(fabric, 0), mesh, parts[0], k)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for step := 0; step < 100; step++ {
		require.NoError(t, ex.Step(ctx, ws))
	}

	n := parts[0].SliceSize()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			require.InDelta(t, k.BoundaryTemp, ws.GetFront(x, y), 1e-6)
		}
	}
}
