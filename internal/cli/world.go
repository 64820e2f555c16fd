package cli

import (
	"github.com/spf13/cobra"
)

func newWorldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Inspect the shared world",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result World
			if err := client.Get(cmd.Context(), "/api/v1/world", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.AddCommand(newWorldDragonsCmd())
	cmd.AddCommand(newWorldOnlineCmd())
	cmd.AddCommand(newWorldCollectiblesCmd())

	return cmd
}

func newWorldDragonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dragons",
		Short: "List the dragons players can choose",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []Dragon
			if err := client.Get(cmd.Context(), "/api/v1/world/dragons", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newWorldOnlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List players currently connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			var result []OnlineUser
			if err := client.Get(cmd.Context(), "/api/v1/world/online", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newWorldCollectiblesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collectibles",
		Short: "List collectibles and who found them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			var result []Collectible
			if err := client.Get(cmd.Context(), "/api/v1/world/collectibles", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
