package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/config"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the Discord bot token in the OS keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := promptSecret("Discord bot token", "From the Bot page of your Discord application", validateBotToken)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			token := strings.TrimPrefix(line, "Bot ")
			if token == "" {
				return fmt.Errorf("no token entered")
			}
			if err := config.SaveToken(token); err != nil {
				return err
			}
			fmt.Println("Token saved. `voxroom serve` will use it when no token is configured.")
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored Discord bot token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteToken(); err != nil {
				return err
			}
			fmt.Println("Token removed.")
			return nil
		},
	}
}
