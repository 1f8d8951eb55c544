package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/latticeforge/stencilmesh/internal/dump"
	"github.com/latticeforge/stencilmesh/internal/history"
	"github.com/latticeforge/stencilmesh/internal/partition"
	"github.com/latticeforge/stencilmesh/internal/solver"
	"github.com/latticeforge/stencilmesh/internal/storage"
	"github.com/latticeforge/stencilmesh/internal/transport"
	"github.com/latticeforge/stencilmesh/pkg/compression"
	stencilconfig "github.com/latticeforge/stencilmesh/pkg/config"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run every rank of a mesh in one process over an in-memory fabric",
	Long: `local is the one-box way to exercise the full halo exchange: it builds
a transport.Fabric shared by cfg.Workers in-process ranks and drives them all
concurrently, ignoring cfg.Rank and any peer_addrs in the loaded config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocalMesh(cmd.Context())
	},
}

func init() {
	localCmd.Flags().StringVar(&runID, "run-id", "", "identifier this run's history and dump records are grouped under")
	rootCmd.AddCommand(localCmd)
}

func runLocalMesh(ctx context.Context) error {
	base, err := stencilconfig.Load(configPath)
	if err != nil {
		return err
	}
	if runID == "" {
		runID = "local-mesh"
	}

	fabric := transport.NewFabric(base.Workers)

	var hist *history.Store
	if base.OutputEnabled {
		hist, err = history.Open(base.Database)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	drivers := make([]*solver.Driver, base.Workers)
	for r := 0; r < base.Workers; r++ {
		cfg := *base
		cfg.Rank = r

		dumper, err := buildLocalDumper(&cfg, runID)
		if err != nil {
			return err
		}

		d, err := solver.New(&cfg, transport.NewLocal(fabric, r), dumper, hist, logger, runID)
		if err != nil {
			return err
		}
		drivers[r] = d
	}

	// errgroup.WithContext derives a context canceled the moment any rank's
	// goroutine returns an error, so the rest of the mesh stops blocking on
	// the barrier or a halo receive it will now never get.
	group, gctx := errgroup.WithContext(ctx)
	for r, d := range drivers {
		d := d
		r := r
		group.Go(func() error {
			_, err := d.Run(gctx)
			if err != nil {
				return fmt.Errorf("rank %d: %w", r, err)
			}
			return nil
		})
	}
	runErr := group.Wait()

	for _, d := range drivers {
		if cerr := d.Close(); cerr != nil && runErr == nil {
			runErr = cerr
		}
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("local mesh of %d ranks finished", base.Workers)
	return nil
}

func buildLocalDumper(cfg *stencilconfig.RunConfig, runID string) (*dump.Dumper, error) {
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
