package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/casesync/casesync/internal/state"
	"github.com/casesync/casesync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watermark, last pass and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.Load(cfg.StateFile)
		if err != nil {
			return err
		}
		sys := st.System(int(cfg.SyncSystemID))
		settings := loader.Settings()

		if jsonOutput {
			values := make(map[string]string, len(settings))
			for _, s := range settings {
				values[s.Key] = s.Value
			}
			outputJSON(map[string]interface{}{
				"config_file": cfg.File,
				"state_file":  cfg.StateFile,
				"last_pass":   sys,
				"settings":    values,
			})
			return nil
		}

		fmt.Println(ui.RenderCategory("Last pass"))
		fmt.Println(ui.RenderSeparator())
		if sys == nil || sys.LastRun == nil {
			fmt.Println(ui.RenderMuted("No pass recorded in " + cfg.StateFile))
		} else {
			fmt.Println(ui.RenderKeyValue("status", ui.RenderStatus(sys.LastStatus)))
			fmt.Println(ui.RenderKeyValue("started", sys.LastRun.Local().Format(time.RFC1123)))
			watermark := ""
			if sys.LastSync != nil {
				watermark = sys.LastSync.Local().Format(time.RFC1123)
			}
			fmt.Println(ui.RenderKeyValue("watermark", watermark))
			fmt.Println(ui.RenderKeyValue("cases created", fmt.Sprint(sys.Pushed)))
			fmt.Println(ui.RenderKeyValue("incidents created/updated", fmt.Sprint(sys.Pulled)))
			fmt.Println(ui.RenderKeyValue("records failed", fmt.Sprint(sys.Errors)))
		}

		fmt.Println()
		fmt.Println(ui.RenderCategory("Configuration"))
		fmt.Println(ui.RenderSeparator())
		fmt.Println(ui.RenderKeyValue("config file", cfg.File))
		for _, s := range settings {
			fmt.Println(ui.RenderKeyValue(s.Key, s.Value))
		}
		if err := loader.Validate(); err != nil {
			fmt.Println()
			fmt.Println(ui.RenderFail(ui.IconFail + " " + err.Error()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
