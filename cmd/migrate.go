package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending application store migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		db.Close()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// openStore connects to the application store and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.EngineDatabase.ConnectionString(),
		MaxConnections: cfg.EngineDatabase.MaxConnections,
		MinConnections: cfg.EngineDatabase.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to application store: %w", err)
	}

	if err := db.Migrate(logger.Named("migrations")); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
