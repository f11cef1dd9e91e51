package cli

import (
	"fmt"

	"github.com/TNEM22/synera-app-backend/internal/database"
	"github.com/TNEM22/synera-app-backend/internal/repositories"
	"github.com/TNEM22/synera-app-backend/internal/services"

	"github.com/spf13/cobra"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Long: `Create an administrator account. Administrators can list every user
and manage any project.

Examples:
  synera create-admin --email root@example.com --name Root --password 's3cret-pass'`,
	RunE: runCreateAdmin,
}

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email address")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "Admin display name")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		return err
	}

	users := services.NewUserService(repositories.NewStore(pool.DB), cfg.Auth.BCryptCost, logger)
	admin, err := users.CreateAdmin(cmd.Context(), services.SignupRequest{
		Name:            adminName,
		Email:           adminEmail,
		Password:        adminPassword,
		PasswordConfirm: adminPassword,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", admin.Email, admin.ID)
	return nil
}
