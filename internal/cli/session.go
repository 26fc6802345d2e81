package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/marketid/internal/api/response"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.MeResponse

			if err := client.Get("/me", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newCanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can <capability>",
		Short: "Check whether the signed-in identity has a capability",
		Long: `Check whether the signed-in identity has a capability.

Capabilities: any_auth, user, store, store_owner, admin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.PermissionResponse

			if err := client.Get("/permissions/"+pathSegment(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Re-check the session with the backend now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.CheckResponse

			if err := client.Post("/session/check", nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSignalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signal <name>",
		Short: "Send a lifecycle signal",
		Long: `Send a lifecycle signal, as a browser does when the user returns.

Signals: visibility, focus, pageshow, manual.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.SignalResponse

			if err := client.Post("/lifecycle/"+pathSegment(args[0]), nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
