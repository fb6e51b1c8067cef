package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/output"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the local database in the current directory",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Initialize(getBaseDir())
		if err != nil {
			output.Error("initialize database: %v", err)
			return err
		}
		defer database.Close()

		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			if err := database.ClearAll(); err != nil {
				output.Error("reset local state: %v", err)
				return err
			}
			output.Warning("Cleared all local entities, queued changes, and conflicts")
		}

		schema, err := database.SchemaVersion()
		if err != nil {
			output.Error("read schema version: %v", err)
			return err
		}
		output.Success("Initialized local database in .airbase/ (schema v%d)", schema)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("reset", false, "Wipe all local state (entities, queue, conflicts)")
	rootCmd.AddCommand(initCmd)
}
