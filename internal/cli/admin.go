package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/marketid/internal/api/request"
	"github.com/mcoot/marketid/internal/api/response"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "User management commands (admin only)",
	}

	cmd.AddCommand(newAdminSetRoleCmd())
	cmd.AddCommand(newAdminRevokeCmd())

	return cmd
}

func newAdminSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.SetRoleRequest{Role: args[1]}
			var result response.ProfileResponse

			if err := client.Patch("/admin/users/"+pathSegment(args[0])+"/role", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newAdminRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Sign a user out of every client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post("/admin/users/"+pathSegment(args[0])+"/revoke", nil, nil); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("User signed out everywhere")
			return nil
		},
	}
}
