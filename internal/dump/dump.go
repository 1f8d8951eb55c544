// Package dump writes a rank's field values to a text record format and
// hands the compressed shard off to object storage, the way a long-running
// solver checkpoints progress for later inspection or restart.
package dump

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"

	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/storage"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/compression"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
	"github.com/latticeforge/stencilmesh/pkg/writer"
)

// Record is one sampled cell: its world coordinates, the iteration it was
// sampled at, and its value.
type Record struct {
	X, Y float64
	T    int
	U    float64
}

// Dumper writes a rank's interior cells as "x y t u" text records,
// compresses the shard, and uploads it under a key scoped to the run and
// rank so concurrent ranks never collide on a shard name.
type Dumper struct {
	store    storage.Storage
	compress compression.Compressor
	runID    string
	part     *partition.Partitioner
}

// New builds a Dumper for one rank, uploading shards through store and
// compressing them with compress.
func New(store storage.Storage, compress compression.Compressor, runID string, part *partition.Partitioner) *Dumper {
	return &Dumper{store: store, compress: compress, runID: runID, part: part}
}

// CompressionExt reports the file extension this Dumper's shards carry,
// for callers building a manifest without reaching into its compressor.
func (d *Dumper) CompressionExt() string { return extFor(d.compress.Type()) }

// Dump samples every interior cell of ws at iteration t and uploads the
// shard, keyed as "<runID>/rank-<rank>/iter-<t>.dump.<ext>" with t
// zero-padded to 8 digits.
func (d *Dumper) Dump(ctx context.Context, ws *workspace.Workspace, t int) error {
	n := ws.InnerSize()
	var buf bytes.Buffer
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			wx, wy := d.part.WorldCoord(x, y)
			fmt.Fprintf(&buf, "%g %g %d %g\n", wx, wy, t, ws.GetFront(x, y))
		}
	}

	compressed, err := d.compress.Compress(buf.Bytes())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeResourceErr, "compress dump shard", err)
	}

	key := fmt.Sprintf("%s/rank-%d/iter-%08d.dump.%s", d.runID, d.part.Rank, t, extFor(d.compress.Type()))
	if err := d.store.Upload(ctx, key, bytes.NewReader(compressed)); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, fmt.Sprintf("upload dump shard %s", key), err)
	}
	return nil
}

// Manifest summarizes one rank's finished run for anyone inspecting its
// dump shards without replaying the whole history table: how many
// iterations ran and a checksum of the final field so two runs with
// identical configuration can be compared for determinism.
type Manifest struct {
	RunID        string `json:"run_id"`
	Rank         int    `json:"rank"`
	GridN        int    `json:"grid_n"`
	TimeSteps    int    `json:"time_steps"`
	Checksum     uint32 `json:"checksum"`
	Compression  string `json:"compression"`
	DurationMSec int64  `json:"duration_ms"`
}

// WriteManifest uploads a JSON summary of the run alongside its dump
// shards, under "<runID>/rank-<rank>/manifest.json". Checksum is computed
// by the caller (solver.Driver, over the final front buffer) so the dump
// package doesn't need to know the workspace's internal layout.
func (d *Dumper) WriteManifest(ctx context.Context, m Manifest) error {
	jw := writer.NewPrettyJSONWriter[Manifest]()
	var buf bytes.Buffer
	if err := jw.Write(m, &buf); err != nil {
		return apperrors.Wrap(apperrors.CodeResourceErr, "encode run manifest", err)
	}
	key := fmt.Sprintf("%s/rank-%d/manifest.json", d.runID, d.part.Rank)
	if err := d.store.Upload(ctx, key, &buf); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, fmt.Sprintf("upload manifest %s", key), err)
	}
	return nil
}

// Checksum folds every interior cell of the front buffer (halo excluded)
// into a single CRC32 value,
// so two runs of the same configuration can be compared for determinism
// without shipping the whole field around.
func Checksum(ws *workspace.Workspace) uint32 {
	n := ws.InnerSize()
	var buf bytes.Buffer
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			fmt.Fprintf(&buf, "%g;", ws.GetFront(x, y))
		}
	}
	return crc32.ChecksumIEEE(buf.Bytes())
}

func extFor(t compression.Type) string {
	switch t {
	case compression.TypeGzip:
		return "gz"
	case compression.TypeZstd:
		return "zst"
	default:
		return "raw"
	}
}

// ShouldDump reports whether iteration t should be dumped under a
// dump-every-N policy; every==0 disables dumping entirely.
func ShouldDump(t, every int) bool {
	if every <= 0 {
		return false
	}
	return t%every == 0
}
