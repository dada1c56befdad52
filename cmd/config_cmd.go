package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/voxroom/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configDefaultsCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			printConfig(loadConfig().Redacted(), asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "output as YAML")
	return cmd
}

func configDefaultsCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in defaults, a starting point for a config file",
		Run: func(cmd *cobra.Command, args []string) {
			printConfig(config.Default(), asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "output as YAML")
	return cmd
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			path := resolveConfigPath()
			if path == "" {
				fmt.Println("(none, using defaults and environment)")
				return
			}
			fmt.Println(path)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			if _, err := config.Load(cfgPath); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid config:\n%s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Config at %q is valid.\n", cfgPath)
		},
	}
}

func printConfig(cfg *config.Config, asYAML bool) {
	if asYAML {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Println(string(data))
}
