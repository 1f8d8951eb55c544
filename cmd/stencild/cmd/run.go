package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticeforge/stencilmesh/internal/dump"
	"github.com/latticeforge/stencilmesh/internal/history"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/solver"
	"github.com/latticeforge/stencilmesh/internal/storage"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/pkg/compression"
	stencilconfig "github.com/latticeforge/stencilmesh/pkg/config"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

var runID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this process's rank of a distributed solve",
	Long: `run loads a RunConfig and drives exactly one rank through its solve.
When PeerAddrs is set it opens a grpc transport to the rest of the mesh and
a barrier coordinator at BarrierAddr; otherwise it runs the rank alone over
a one-rank in-process fabric. To run every rank in one process, use "local".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRank(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "identifier this run's history and dump records are grouped under")
	rootCmd.AddCommand(runCmd)
}

func runRank(ctx context.Context) error {
	cfg, err := stencilconfig.Load(configPath)
	if err != nil {
		return err
	}
	if runID == "" {
		runID = fmt.Sprintf("rank-%d-solo", cfg.Rank)
	}

	layer, closeBarrier, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	if closeBarrier != nil {
		defer closeBarrier()
	}

	dumper, err := buildDumper(cfg, runID)
	if err != nil {
		return err
	}

	var hist *history.Store
	if cfg.OutputEnabled {
		hist, err = history.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	d, err := solver.New(cfg, layer, dumper, hist, logger, runID)
	if err != nil {
		return err
	}
	defer d.Close()

	duration, err := d.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("rank %d finished in %s", cfg.Rank, duration)
	return nil
}

// buildTransport picks the in-process fabric transport when the rank is
// running alone (no peer addresses configured) or the grpc transport when
// it's one process in a real distributed mesh. The returned closer tears
// down any resources buildTransport itself started (none for the local
// fabric, since its lifetime belongs to whichever process created it).
func buildTransport(cfg *stencilconfig.RunConfig) (transport.Layer, func(), error) {
	if len(cfg.PeerAddrs) == 0 {
		return transport.NewLocal(transport.NewFabric(1), 0), nil, nil
	}
	if cfg.Rank >= len(cfg.PeerAddrs) {
		return nil, nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("rank %d has no entry in peer_addrs", cfg.Rank), apperrors.ErrMalformedCLI)
	}
	if cfg.BarrierAddr == "" {
		return nil, nil, apperrors.Wrap(apperrors.CodeConfigError, "barrier_addr is required when peer_addrs is set", apperrors.ErrMalformedCLI)
	}

	layer, err := transport.NewRPC(cfg.Rank, cfg.PeerAddrs[cfg.Rank], cfg.PeerAddrs, cfg.BarrierAddr)
	if err != nil {
		return nil, nil, err
	}
	return layer, nil, nil
}

func buildDumper(cfg *stencilconfig.RunConfig, runID string) (*dump.Dumper, error) {
	if !cfg.OutputEnabled {
		return nil, nil
	}
	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	compressor, err := compression.New(compression.TypeZstd, compression.LevelDefault)
	if err != nil {
		return nil, err
	}
	part, err := partition.New(cfg)
	if err != nil {
		return nil, err
	}
	return dump.New(store, compressor, runID, part), nil
}
