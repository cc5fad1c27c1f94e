package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/tutoring-platform/backend/config"
	"github.com/upb/tutoring-platform/backend/repositories/postgres"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the security log schema",
	}

	for _, direction := range []string{postgres.MigrateUp, postgres.MigrateDown} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run all %s migrations", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, logger, err := openDB(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				defer func() { _ = logger.Sync() }()

				return db.Migrate(direction)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, logger, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			defer func() { _ = logger.Sync() }()

			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return cmd
}

func openDB(cmd *cobra.Command) (*postgres.DB, *zap.Logger, error) {
	cfg, err := config.New(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := postgres.NewDB(cmd.Context(), cfg.Database, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return db, logger, nil
}
