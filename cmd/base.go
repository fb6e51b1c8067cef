package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/output"
)

var baseCmd = &cobra.Command{
	Use:     "base",
	Short:   "Manage bases",
	GroupID: "core",
}

var baseCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")

		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		base, err := svc.CreateBase(cmd.Context(), args[0], desc)
		if err != nil {
			output.Error("create base: %v", err)
			return err
		}
		output.Base(base)
		if base.SyncStatus == models.StatusPending {
			output.Warning("offline: queued for sync")
		}
		autoSyncAfterMutation(database)
		return nil
	},
}

var baseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bases",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		bases, err := svc.ListBases(cmd.Context())
		if err != nil {
			output.Error("list bases: %v", err)
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(bases)
		}
		for i := range bases {
			output.Base(&bases[i])
		}
		return nil
	},
}

var baseShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		base, err := svc.GetBase(cmd.Context(), args[0])
		if err != nil {
			output.Error("get base: %v", err)
			return err
		}
		return output.JSON(base)
	},
}

var baseUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a base",
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

		base, err := svc.UpdateBase(cmd.Context(), args[0], patch)
		if err != nil {
			output.Error("update base: %v", err)
			return err
		}
		output.Base(base)
		autoSyncAfterMutation(database)
		return nil
	},
}

var baseDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := svc.DeleteBase(cmd.Context(), args[0]); err != nil {
			output.Error("delete base: %v", err)
			return err
		}
		output.Success("Deleted base %s", args[0])
		autoSyncAfterMutation(database)
		return nil
	},
}

func init() {
	baseCreateCmd.Flags().String("description", "", "Base description")
	baseUpdateCmd.Flags().String("name", "", "New name")
	baseUpdateCmd.Flags().String("description", "", "New description")
	baseListCmd.Flags().Bool("json", false, "Output JSON")

	baseCmd.AddCommand(baseCreateCmd, baseListCmd, baseShowCmd, baseUpdateCmd, baseDeleteCmd)
	rootCmd.AddCommand(baseCmd)
}
