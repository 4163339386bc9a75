package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entanglement/entanglement/internal/config"
	"github.com/entanglement/entanglement/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var storageBase string
	var gcInterval time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run entanglementd, periodically garbage collecting in the background",
		Long: `Run opens the storage layer and blocks until interrupted, reclaiming
zero-refcount chunks and compacting eligible containers on gcInterval.

entanglementd owns no network transport itself (spec §1); embedding it
behind HTTP, gRPC, or another protocol is the caller's job, via
pkg/entangle.Client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.DefaultOptions()
			opts.StorageBase = storageBase
			opts.Verbose = verbose
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			core, err := server.New(opts, nil)
			if err != nil {
				return fmt.Errorf("start core: %w", err)
			}
			defer core.Close()

			core.Log.Info(fmt.Sprintf("entanglementd serving from %s", opts.StorageBase))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(gcInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					core.Log.Info("shutting down")
					return nil
				case <-ticker.C:
					start := time.Now()
					res, err := core.RunGC(ctx)
					if err != nil {
						core.Log.Error(err, "background garbage collection failed")
						continue
					}
					if res.ChunksReclaimed > 0 || res.ContainersCompacted > 0 {
						core.Log.GCResult(res.ChunksReclaimed, res.ContainersCompacted, time.Since(start))
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&storageBase, "storage", "s", "./entanglement-data", "Storage directory for the database and packfile containers")
	cmd.Flags().DurationVar(&gcInterval, "gc-interval", 15*time.Minute, "Interval between background garbage collection passes")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug-level logging")

	return cmd
}
