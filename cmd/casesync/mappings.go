package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/types"
	"github.com/casesync/casesync/internal/ui"
)

var mappingsCmd = &cobra.Command{
	Use:       "mappings [projects|users|incidents|releases]",
	Short:     "List mapping rows",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"projects", "users", "incidents", "releases"},
	RunE: func(cmd *cobra.Command, args []string) error {
		table := "projects"
		if len(args) == 1 {
			table = args[0]
		}

		conn, err := newConnector(rootCtx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()
		if cfg.MappingBackend == config.BackendSpira {
			if err := conn.authenticateLocal(rootCtx, cfg); err != nil {
				return err
			}
		}

		rows, err := readMappings(rootCtx, conn.store, table)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(rows)
			return nil
		}
		printMappings(table, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
}

func readMappings(ctx context.Context, store mapping.Store, table string) ([]types.DataMapping, error) {
	switch table {
	case "projects":
		return store.ProjectMappings(ctx)
	case "users":
		return store.UserMappings(ctx)
	default:
		artifact, err := types.ParseArtifactType(table)
		if err != nil {
			return nil, fmt.Errorf("unknown mapping table %q (want projects, users, incidents or releases)", table)
		}
		return store.ArtifactMappings(ctx, artifact)
	}
}

func printMappings(table string, rows []types.DataMapping) {
	fmt.Printf("%s  %s\n", ui.RenderCategory(table), ui.RenderMuted(fmt.Sprintf("(%d rows)", len(rows))))
	fmt.Println(ui.RenderSeparator())
	for _, r := range rows {
		line := fmt.Sprintf("%-8s %-10s -> %s", "PR"+strconv.Itoa(r.ProjectID), strconv.Itoa(r.InternalID), r.ExternalKey)
		if !r.Primary {
			line += " " + ui.RenderMuted("(secondary)")
		}
		fmt.Println(line)
	}
}
