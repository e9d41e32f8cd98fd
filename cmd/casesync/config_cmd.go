package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every required key is set and every value is valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loader.Validate(); err != nil {
			if jsonOutput {
				outputJSON(map[string]interface{}{"valid": false, "error": err.Error()})
			}
			return err
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"valid": true, "file": cfg.File})
			return nil
		}
		source := cfg.File
		if source == "" {
			source = "environment"
		}
		fmt.Printf("%s configuration from %s is valid\n", ui.RenderPass(ui.IconPass), source)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every configuration key",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.Keys {
			def := k.Default
			if def == "" && k.Required {
				def = "required"
			}
			fmt.Printf("%s %s\n", ui.RenderKeyValue(k.Name, k.Description), ui.RenderMuted("["+k.EnvVar()+"] "+def))
		}
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}
