package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/batchreg/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage batchreg configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.json with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("config-dir")
		endpoint, _ := cmd.Flags().GetString("endpoint")

		cfg := config.DefaultConfig()
		cfg.Endpoint = endpoint

		if err := config.SaveConfig(dir, cfg); err != nil {
			return err
		}
		fmt.Println("✓ Config written")
		if endpoint == "" {
			fmt.Println("  Set \"endpoint\" before running a batch.")
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("config-dir")

		cfg, err := config.LoadConfig(dir)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("config-dir", "", "Config directory (default ~/.batchreg)")
	configInitCmd.Flags().String("endpoint", "", "Registration form URL")
	configShowCmd.Flags().String("config-dir", "", "Config directory (default ~/.batchreg)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// ConfigCmd returns the config command.
func ConfigCmd() *cobra.Command {
	return configCmd
}
