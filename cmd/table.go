package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/output"
)

var tableCmd = &cobra.Command{
	Use:     "table",
	Short:   "Manage tables",
	GroupID: "core",
}

var tableCreateCmd = &cobra.Command{
	Use:   "create <base-id> <name>",
	Short: "Create a table in a base",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")

		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		table, err := svc.CreateTable(cmd.Context(), args[0], args[1], desc)
		if err != nil {
			output.Error("create table: %v", err)
			return err
		}
		output.Table(table)
		if table.SyncStatus == models.StatusPending {
			output.Warning("offline: queued for sync")
		}
		autoSyncAfterMutation(database)
		return nil
	},
}

var tableListCmd = &cobra.Command{
	Use:   "list <base-id>",
	Short: "List tables in a base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		tables, err := svc.ListTables(cmd.Context(), args[0])
		if err != nil {
			output.Error("list tables: %v", err)
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(tables)
		}
		for i := range tables {
			output.Table(&tables[i])
		}
		return nil
	},
}

var tableShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		table, err := svc.GetTable(cmd.Context(), args[0])
		if err != nil {
			output.Error("get table: %v", err)
			return err
		}
		return output.JSON(table)
	},
}

var tableUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := map[string]any{}
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			patch["name"] = name
		}
		if desc, _ := cmd.Flags().GetString("description"); desc != "" {
			patch["description"] = desc
		}
		if len(patch) == 0 {
			output.Error("nothing to update: pass --name or --description")
			return errNothingToUpdate
		}

		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		table, err := svc.UpdateTable(cmd.Context(), args[0], patch)
		if err != nil {
			output.Error("update table: %v", err)
			return err
		}
		output.Table(table)
		autoSyncAfterMutation(database)
		return nil
	},
}

var tableDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := svc.DeleteTable(cmd.Context(), args[0]); err != nil {
			output.Error("delete table: %v", err)
			return err
		}
		output.Success("Deleted table %s", args[0])
		autoSyncAfterMutation(database)
		return nil
	},
}

func init() {
	tableCreateCmd.Flags().String("description", "", "Table description")
	tableUpdateCmd.Flags().String("name", "", "New name")
	tableUpdateCmd.Flags().String("description", "", "New description")
	tableListCmd.Flags().Bool("json", false, "Output JSON")

	tableCmd.AddCommand(tableCreateCmd, tableListCmd, tableShowCmd, tableUpdateCmd, tableDeleteCmd)
	rootCmd.AddCommand(tableCmd)
}
