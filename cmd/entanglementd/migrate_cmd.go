package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entanglement/entanglement/internal/config"
	"github.com/entanglement/entanglement/internal/store"
)

func init() {
	rootCmd.AddCommand(migrateCmd())
}

func migrateCmd() *cobra.Command {
	var storageBase string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and report the current schema version",
		Long: `store.Open already applies any pending migration on every startup
(tracked in schema_migrations), so this command exists for operators who
want to run migrations as a separate, explicit step ahead of a deploy
rather than on a daemon's first request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.DefaultOptions()
			opts.StorageBase = storageBase
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			db, err := store.Open(opts.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}

			fmt.Printf("Database at %s is at schema version %d.\n", opts.DatabasePath, version)
			return nil
		},
	}

	cmd.Flags().StringVarP(&storageBase, "storage", "s", "./entanglement-data", "Storage directory for the database")

	return cmd
}
