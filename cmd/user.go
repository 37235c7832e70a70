package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
	"github.com/ekaya-inc/querygate/pkg/services"
)

var (
	newUsername string
	newPassword string
	newAdmin    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage querygate accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Example: `  querygate user create --username alice --password 's3cret-pass'
  querygate user create --username root --password 's3cret-pass' --admin`,
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
		defer db.Close()

		role := models.RoleViewer
		if newAdmin {
			role = models.RoleAdmin
		}

		users := services.NewUserService(repositories.NewUserRepository(), database.NewScopeProvider(db), logger)
		user, err := users.CreateWithRole(cmd.Context(), newUsername, newPassword, role)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) with id %s\n", user.Username, user.Role, user.ID)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&newUsername, "username", "", "Account username")
	userCreateCmd.Flags().StringVar(&newPassword, "password", "", "Account password")
	userCreateCmd.Flags().BoolVar(&newAdmin, "admin", false, "Grant the admin role")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
