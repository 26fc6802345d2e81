package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/marketid/internal/api/request"
	"github.com/mcoot/marketid/internal/api/response"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}

			req := request.LoginRequest{Email: email, Password: pw}
			var result response.AuthResponse

			if err := client.Post("/auth/login", req, &result); err != nil {
				return err
			}

			return saveAndPrint(cmd, result)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted for when omitted)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	var req request.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordOrPrompt(cmd, req.Password)
			if err != nil {
				return err
			}
			req.Password = pw

			var result response.AuthResponse
			if err := client.Post("/auth/register", req, &result); err != nil {
				return err
			}

			return saveAndPrint(cmd, result)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (prompted for when omitted)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Role, "role", "", "Account type: user, store")
	cmd.Flags().StringVar(&req.StoreName, "store-name", "", "Store name for store accounts")
	cmd.Flags().StringVar(&req.StoreDescription, "store-description", "", "Store description for store accounts")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return fmt.Errorf("not signed in")
			}

			if err := client.Post("/auth/logout", nil, nil); err != nil {
				return err
			}

			if err := cfg.ClearToken(); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Signed out")
			return nil
		},
	}
}

// saveAndPrint keeps the client ID for later commands and prints the identity
func saveAndPrint(cmd *cobra.Command, result response.AuthResponse) error {
	if err := cfg.SaveToken(result.ClientID); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	client.SetToken(result.ClientID)

	NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
	return nil
}
