// Package cmd holds the querygate command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/config"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "querygate",
	Short: "Conversational query gateway",
	Long: `querygate turns natural-language questions into queries against
configured SQL, MongoDB and Redis databases, runs them after the user
confirms, and keeps the conversation history per user.

Running querygate without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command with the build version.
func Execute(buildVersion string) {
	if buildVersion != "" {
		version = buildVersion
	}
	rootCmd.Version = version
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config.yaml")
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath, version)
}

// newLogger builds a console logger for local environments and JSON otherwise.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		logConfig := zap.NewDevelopmentConfig()
		return logConfig.Build()
	}
	logConfig := zap.NewProductionConfig()
	return logConfig.Build(zap.Fields(zap.String("service", "querygate"), zap.String("version", cfg.Version)))
}
