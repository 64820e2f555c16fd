package cli

import (
	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Session and account administration (admin accounts only)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireToken()
		},
	}

	cmd.AddCommand(newAdminSessionsCmd())
	cmd.AddCommand(newAdminTerminateCmd())
	cmd.AddCommand(newAdminUsersCmd())
	cmd.AddCommand(newAdminCreateUserCmd())

	return cmd
}

func newAdminSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []Session
			if err := client.Get(cmd.Context(), "/api/v1/admin/sessions", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newAdminTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <session-id>",
		Short: "Terminate a session and disconnect its owner",
		Long: `Terminate a session. Every live connection of the session's user is
told the session was terminated and then disconnected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(cmd.Context(), "/api/v1/admin/sessions/"+args[0]); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage("Session " + args[0] + " terminated")
			return nil
		},
	}
}

func newAdminUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []User
			if err := client.Get(cmd.Context(), "/api/v1/admin/users", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newAdminCreateUserCmd() *cobra.Command {
	var user, pass, nickname string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, optionally with admin rights",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(pass, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req := map[string]any{
				"username": user,
				"password": password,
				"isAdmin":  isAdmin,
			}
			if nickname != "" {
				req["nickname"] = nickname
			}
			var result User
			if err := client.Post(cmd.Context(), "/api/v1/admin/users", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "Nickname (defaults to the username)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant admin rights")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
