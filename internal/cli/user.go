package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account and session commands",
	}

	cmd.AddCommand(newUserRegisterCmd())
	cmd.AddCommand(newUserLoginCmd())
	cmd.AddCommand(newUserLogoutCmd())
	cmd.AddCommand(newUserMeCmd())
	cmd.AddCommand(newUserNicknameCmd())

	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	var user, pass, nickname string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(pass, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req := map[string]string{
				"username": user,
				"password": password,
			}
			if nickname != "" {
				req["nickname"] = nickname
			}
			var result AuthResult

			if err := client.Post(cmd.Context(), "/api/v1/users/register", req, &result); err != nil {
				return err
			}

			// Save token
			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "Nickname shown to other players (defaults to the username)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUserLoginCmd() *cobra.Command {
	var user, pass string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(pass, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req := map[string]string{
				"username": user,
				"password": password,
			}
			var result AuthResult

			if err := client.Post(cmd.Context(), "/api/v1/users/login", req, &result); err != nil {
				return err
			}

			// Save token
			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (prompted if omitted)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUserLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			err := client.Post(cmd.Context(), "/api/v1/users/logout", nil, nil)
			// An already-dead session still counts as logged out
			var apiErr *APIError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == 401) {
				return err
			}

			if err := cfg.ClearToken(); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage("Logged out")
			return nil
		},
	}
}

func newUserMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			var result User
			if err := client.Get(cmd.Context(), "/api/v1/users/me", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newUserNicknameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nickname <nickname>",
		Short: "Change your nickname",
		Long: `Change the nickname other players see. Nicknames are 2 to 64 characters.
Players currently online see the change immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			req := map[string]string{"nickname": args[0]}
			var result User
			if err := client.Patch(cmd.Context(), "/api/v1/users/me/nickname", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
