package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/migrations"
)

// NewMigrateCmd создаёт группу команд миграций схемы.
func NewMigrateCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := env.App(cmd.Context(), app.Options{Migrate: true})
				if err != nil {
					return err
				}

				version, err := migrations.Version(cmd.Context(), migrations.Open(a.DB))
				if err != nil {
					return err
				}
				env.Output().Success(fmt.Sprintf("Schema is at version %d", version))
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := env.App(cmd.Context(), app.Options{})
				if err != nil {
					return err
				}
				return migrations.Status(cmd.Context(), migrations.Open(a.DB))
			},
		},
	)

	return cmd
}
