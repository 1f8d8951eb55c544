// Package solver drives a single rank's run: it builds the partition,
// topology and workspace for the configured grid and mesh, picks the halo
// exchange design, and loops through the configured number of time steps,
// dumping and recording progress along the way.
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/latticeforge/stencilmesh/internal/dump"
	"github.com/latticeforge/stencilmesh/internal/exchange"
	"github.com/latticeforge/stencilmesh/internal/history"
	"github.com/latticeforge/stencilmesh/internal/kernel"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/topology"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/internal/workspace"
	"github.com/latticeforge/stencilmesh/pkg/config"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
	"github.com/latticeforge/stencilmesh/pkg/utils"
)

// Driver owns one rank's end-to-end run: partition, exchanger, workspace
// and the optional dump/history sinks.
type Driver struct {
	cfg   *config.RunConfig
	part  *partition.Partitioner
	mesh  *topology.Mesh
	ws    *workspace.Workspace
	ex    exchange.Exchanger
	layer transport.Layer

	log    utils.Logger
	timer  *utils.Timer
	dumper *dump.Dumper
	hist   *history.Store
	runID  string
}

// New builds a Driver from a validated RunConfig and a transport.Layer the
// caller has already constructed (local fabric or grpc, see cmd/stencild).
// dumper and hist are optional; either may be nil to disable that sink.
func New(cfg *config.RunConfig, layer transport.Layer, dumper *dump.Dumper, hist *history.Store, log utils.Logger, runID string) (*Driver, error) {
	part, err := partition.New(cfg)
	if err != nil {
		return nil, err
	}
	mesh := topology.NewMesh(part.S)
	k := kernel.DefaultKernel()

	border := 1
	if cfg.Variant == config.VariantTemporal {
		border = cfg.Window
	}
	ws, err := workspace.New(part.SliceSize(), border)
	if err != nil {
		return nil, err
	}
	ws.FillFront(func(x, y int) float64 {
		wx, wy := part.WorldCoord(x, y)
		return k.Source(wx, wy)
	})

	var ex exchange.Exchanger
	switch cfg.Variant {
	case config.VariantSync:
		ex = exchange.NewSync(layer, mesh, part, k)
	case config.VariantAsync:
		ex = exchange.NewAsync(layer, mesh, part, k)
	case config.VariantTemporal:
		ex = exchange.NewTemporal(layer, mesh, part, k, cfg.Window)
	default:
		return nil, apperrors.Wrap(apperrors.CodeUsageError, fmt.Sprintf("unknown exchange variant %q", cfg.Variant), nil)
	}

	if log == nil {
		log = &utils.NullLogger{}
	}
	log = utils.WithRank(log, cfg.Rank)

	return &Driver{
		cfg:    cfg,
		part:   part,
		mesh:   mesh,
		ws:     ws,
		ex:     ex,
		layer:  layer,
		log:    log,
		timer:  utils.NewTimer("solve", utils.WithLogger(log)),
		dumper: dumper,
		hist:   hist,
		runID:  runID,
	}, nil
}

// Run advances the workspace through cfg.TimeSteps iterations (or windows,
// for the temporal design), dumping and barrier-synchronizing according to
// configuration, and returns the wall-clock duration of the solve.
func (d *Driver) Run(ctx context.Context) (time.Duration, error) {
	started := time.Now()

	var recordID uint
	if d.hist != nil {
		id, err := d.hist.Start(ctx, d.runID, d.part.Rank, d.cfg.N, d.cfg.TimeSteps, d.cfg.Workers, string(d.cfg.Variant))
		if err != nil {
			d.log.Warn("failed to record run start: %v", err)
		} else {
			recordID = id
		}
	}

	if err := d.layer.Barrier(ctx); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeCommError, "initial barrier", err)
	}

	step := 1
	if d.cfg.Variant == config.VariantTemporal {
		step = d.cfg.Window
	}

	var runErr error
	for t := 0; t < d.cfg.TimeSteps; t += step {
		pt := d.timer.Start(fmt.Sprintf("iter-%d", t))
		if err := d.ex.Step(ctx, d.ws); err != nil {
			runErr = apperrors.Wrap(apperrors.CodeCommError, fmt.Sprintf("step at iteration %d", t), err)
			pt.Stop()
			break
		}
		pt.Stop()

		if d.cfg.OutputEnabled && d.dumper != nil && dump.ShouldDump(t, d.cfg.DumpEvery) {
			if err := d.dumper.Dump(ctx, d.ws, t); err != nil {
				d.log.Warn("dump at iteration %d failed: %v", t, err)
			}
		}
	}

	duration := time.Since(started)

	if d.hist != nil && recordID != 0 {
		if err := d.hist.Finish(ctx, recordID, started, runErr); err != nil {
			d.log.Warn("failed to record run finish: %v", err)
		}
	}

	if runErr == nil && d.cfg.OutputEnabled && d.dumper != nil {
		manifest := dump.Manifest{
			RunID:        d.runID,
			Rank:         d.part.Rank,
			GridN:        d.cfg.N,
			TimeSteps:    d.cfg.TimeSteps,
			Checksum:     dump.Checksum(d.ws),
			Compression:  d.dumper.CompressionExt(),
			DurationMSec: duration.Milliseconds(),
		}
		if err := d.dumper.WriteManifest(ctx, manifest); err != nil {
			d.log.Warn("failed to write run manifest: %v", err)
		}
	}

	if runErr != nil {
		return duration, runErr
	}
	return duration, nil
}

// Workspace exposes the rank's current field, primarily for tests that
// inspect the final state without going through a dump.
func (d *Driver) Workspace() *workspace.Workspace { return d.ws }

// Close releases the exchanger and transport layer.
func (d *Driver) Close() error {
	if err := d.ex.Close(); err != nil {
		return err
	}
	return d.layer.Close()
}
