package dump

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/storage"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/compression"
	"github.com/latticeforge/stencilmesh/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestDumper_WritesRecordsAndUploadsUnderScopedKey(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	part, err := partition.New(&config.RunConfig{N: 4, Workers: 1, Rank: 0})
	require.NoError(t, err)

	ws, err := workspace.New(part.SliceSize(), 1)
	require.NoError(t, err)
	ws.FillFront(func(x, y int) float64 { return float64(x + y) })

	d := New(store, compression.NewNoOpCompressor(), "run-42", part)

	ctx := context.Background()
	require.NoError(t, d.Dump(ctx, ws, 7))

	key := "run-42/rank-0/iter-00000007.dump.raw"
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	r, err := store.Download(ctx, key)
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, part.SliceSize()*part.SliceSize())
	require.Contains(t, lines[0], " 7 ")
}

func TestDumper_WriteManifestUploadsUnderScopedKey(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	part, err := partition.New(&config.RunConfig{N: 4, Workers: 1, Rank: 0})
	require.NoError(t, err)

	d := New(store, compression.NewNoOpCompressor(), "run-42", part)

	ctx := context.Background()
	require.NoError(t, d.WriteManifest(ctx, Manifest{RunID: "run-42", Rank: 0, GridN: 4, TimeSteps: 10, Checksum: 0xdeadbeef}))

	key := "run-42/rank-0/manifest.json"
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	r, err := store.Download(ctx, key)
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Contains(t, string(content), `"run_id": "run-42"`)
}

func TestChecksum_SameFieldSameChecksum(t *testing.T) {
	part, err := partition.New(&config.RunConfig{N: 4, Workers: 1, Rank: 0})
	require.NoError(t, err)

	fill := func(x, y int) float64 { return float64(x*7 + y*3) }
	a, err := workspace.New(part.SliceSize(), 1)
	require.NoError(t, err)
	a.FillFront(fill)
	b, err := workspace.New(part.SliceSize(), 1)
	require.NoError(t, err)
	b.FillFront(fill)

	require.Equal(t, Checksum(a), Checksum(b))

	b.SetFront(0, 0, 999)
	require.NotEqual(t, Checksum(a), Checksum(b))
}

func TestShouldDump(t *testing.T) {
	require.False(t, ShouldDump(10, 0))
	require.True(t, ShouldDump(0, 25))
	require.True(t, ShouldDump(25, 25))
	require.False(t, ShouldDump(26, 25))
}
