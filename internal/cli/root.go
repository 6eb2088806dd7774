package cli

import (
	"fmt"
	"os"

	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/spf13/cobra"
)

func Execute() {
	cmd := NewRootCmd(OpenDatabase)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the storectl command tree. open is called lazily, so
// commands such as version never touch the database.
func NewRootCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "storectl",
		Short:        "Operator tools for the rupomoti store",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		migrateCmd(open),
		seedCmd(open),
		adminCmd(open),
		ordersCmd(open),
		couponsCmd(open),
		versionCmd(),
	)
	return cmd
}

func migrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := env.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return nil
		},
	}
}

func adminCmd(open Opener) *cobra.Command {
	c := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}
	c.AddCommand(adminCreateCmd(open))
	return c
}

func adminCreateCmd(open Opener) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin, or promote and reset an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STORECTL_ADMIN_PASSWORD")
			}

			env, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			u, err := env.Users.CreateAdmin(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready (id %s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set STORECTL_ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
