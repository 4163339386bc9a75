package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/entanglement/entanglement/internal/config"
	"github.com/entanglement/entanglement/internal/server"
)

func init() {
	rootCmd.AddCommand(gcCmd())
}

func gcCmd() *cobra.Command {
	var storageBase string
	var compact bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim zero-refcount chunks, optionally compacting sealed containers",
		Long: `gc deletes chunks no file references anymore. Pass --compact to also
rewrite sealed containers whose live-chunk fraction has dropped below
the compaction threshold (spec §4.12) — a more expensive pass, since it
rereads and rewrites bytes rather than only dropping index rows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.DefaultOptions()
			opts.StorageBase = storageBase
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			core, err := server.New(opts, nil)
			if err != nil {
				return fmt.Errorf("start core: %w", err)
			}
			defer core.Close()

			ctx := context.Background()

			var progress *mpb.Progress
			var bar *mpb.Bar
			if !quiet {
				progress = mpb.New(mpb.WithWidth(60))
				bar = progress.AddBar(1,
					mpb.PrependDecorators(decor.Name("garbage collection")),
					mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
				)
			}

			var chunksReclaimed, containersCompacted int
			if compact {
				res, err := core.RunGC(ctx)
				chunksReclaimed, containersCompacted = res.ChunksReclaimed, res.ContainersCompacted
				if bar != nil {
					bar.SetCurrent(1)
				}
				if progress != nil {
					progress.Wait()
				}
				if err != nil {
					return fmt.Errorf("garbage collection failed: %w", err)
				}
			} else {
				res, err := core.GC.ReclaimOnly(ctx)
				chunksReclaimed = res.ChunksReclaimed
				if bar != nil {
					bar.SetCurrent(1)
				}
				if progress != nil {
					progress.Wait()
				}
				if err != nil {
					return fmt.Errorf("garbage collection failed: %w", err)
				}
			}

			if compact {
				fmt.Printf("Reclaimed %d chunks, compacted %d containers.\n", chunksReclaimed, containersCompacted)
			} else {
				fmt.Printf("Reclaimed %d chunks.\n", chunksReclaimed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&storageBase, "storage", "s", "./entanglement-data", "Storage directory for the database and packfile containers")
	cmd.Flags().BoolVar(&compact, "compact", false, "Also compact sealed containers below the live-chunk threshold")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress the progress bar")

	return cmd
}
