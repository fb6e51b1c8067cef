package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ferris/airbase/internal/input"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/output"
	"github.com/ferris/airbase/internal/query"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	Short:   "Manage records",
	GroupID: "core",
}

// parseFields turns --set k=v pairs and an optional --json document into a
// fields map. Values that parse as numbers or booleans are stored typed.
func parseFields(flags *pflag.FlagSet) (map[string]any, error) {
	fields := map[string]any{}

	if raw, _ := flags.GetString("json"); raw != "" {
		doc, err := input.ExpandValue(raw)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &fields); err != nil {
			return nil, fmt.Errorf("parse --json: %w", err)
		}
	}

	pairs, _ := flags.GetStringArray("set")
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: want key=value", pair)
		}
		fields[key] = coerceValue(value)
	}
	return fields, nil
}

func coerceValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

var recordCreateCmd = &cobra.Command{
	Use:   "create <table-id>",
	Short: "Create a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(cmd.Flags())
		if err != nil {
			output.Error("%v", err)
			return err
		}

		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		record, err := svc.CreateRecord(cmd.Context(), args[0], fields)
		if err != nil {
			output.Error("create record: %v", err)
			return err
		}
		output.Record(record)
		if record.SyncStatus == models.StatusPending {
			output.Warning("offline: queued for sync")
		}
		autoSyncAfterMutation(database)
		return nil
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list <table-id>",
	Short: "List records in a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		records, err := svc.ListRecords(cmd.Context(), args[0])
		if err != nil {
			output.Error("list records: %v", err)
			return err
		}

		if filter, _ := cmd.Flags().GetString("filter"); filter != "" {
			q, err := query.Parse(filter)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			records, err = query.NewEvaluator(q).Filter(records)
			if err != nil {
				output.Error("apply filter: %v", err)
				return err
			}
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(records)
		}
		for i := range records {
			output.Record(&records[i])
		}
		return nil
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <table-id> <id>",
	Short: "Show a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		record, err := svc.GetRecord(cmd.Context(), args[0], args[1])
		if err != nil {
			output.Error("get record: %v", err)
			return err
		}
		return output.JSON(record)
	},
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <table-id> <id>",
	Short: "Update a record's fields",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(cmd.Flags())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if len(fields) == 0 {
			output.Error("nothing to update: pass --set or --json")
			return errNothingToUpdate
		}

		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		record, err := svc.UpdateRecord(cmd.Context(), args[0], args[1], fields)
		if err != nil {
			output.Error("update record: %v", err)
			return err
		}
		output.Record(record)
		autoSyncAfterMutation(database)
		return nil
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <table-id> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, database, err := newService()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := svc.DeleteRecord(cmd.Context(), args[0], args[1]); err != nil {
			output.Error("delete record: %v", err)
			return err
		}
		output.Success("Deleted record %s", args[1])
		autoSyncAfterMutation(database)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{recordCreateCmd, recordUpdateCmd} {
		c.Flags().StringArray("set", nil, "Set a field (key=value, repeatable)")
		c.Flags().String("json", "", "Fields as a JSON object (- for stdin, @file for a file)")
	}
	recordListCmd.Flags().Bool("json", false, "Output JSON")
	recordListCmd.Flags().String("filter", "", `Filter expression, e.g. 'status = done AND points > 3'`)

	recordCmd.AddCommand(recordCreateCmd, recordListCmd, recordShowCmd, recordUpdateCmd, recordDeleteCmd)
	rootCmd.AddCommand(recordCmd)
}
