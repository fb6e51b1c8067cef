package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/output"
	absync "github.com/ferris/airbase/internal/sync"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Short:   "Inspect and resolve sync conflicts",
	GroupID: "sync",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		conflicts, err := database.ListConflicts(limit)
		if err != nil {
			output.Error("list conflicts: %v", err)
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("No conflicts.")
			return nil
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(conflicts)
		}
		for _, c := range conflicts {
			fmt.Printf("change #%d  %s/%s  detected %s\n",
				c.ChangeID, c.EntityType, c.EntityID, c.DetectedAt.Local().Format("2006-01-02 15:04"))
			fmt.Printf("  local:  %s\n", c.LocalSnapshot)
			fmt.Printf("  remote: %s\n", c.RemoteSnapshot)
		}
		return nil
	},
}

// withScheduler parses a change id argument and hands an open scheduler to fn.
func withScheduler(args []string, fn func(*absync.Scheduler, int64) error) error {
	changeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		output.Error("invalid change id %q", args[0])
		return err
	}

	database, err := db.Open(getBaseDir())
	if err != nil {
		output.Error("open database: %v", err)
		return err
	}
	defer database.Close()

	return fn(newScheduler(database), changeID)
}

var conflictsAcceptLocalCmd = &cobra.Command{
	Use:   "accept-local <change-id>",
	Short: "Force-push the local change, overwriting the remote edit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(args, func(s *absync.Scheduler, changeID int64) error {
			if err := s.AcceptLocal(cmd.Context(), changeID); err != nil {
				output.Error("accept local: %v", err)
				return err
			}
			output.Success("Change #%d pushed", changeID)
			return nil
		})
	},
}

var conflictsAcceptRemoteCmd = &cobra.Command{
	Use:   "accept-remote <change-id>",
	Short: "Drop the local change and take the server's version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(args, func(s *absync.Scheduler, changeID int64) error {
			if err := s.AcceptRemote(cmd.Context(), changeID); err != nil {
				output.Error("accept remote: %v", err)
				return err
			}
			output.Success("Change #%d dropped, remote version kept", changeID)
			return nil
		})
	},
}

var conflictsDiscardCmd = &cobra.Command{
	Use:   "discard <change-id>",
	Short: "Remove a queued change without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(args, func(s *absync.Scheduler, changeID int64) error {
			if err := s.Discard(changeID); err != nil {
				output.Error("discard: %v", err)
				return err
			}
			output.Success("Change #%d discarded", changeID)
			return nil
		})
	},
}

var retryCmd = &cobra.Command{
	Use:     "retry <change-id>",
	Short:   "Re-queue a failed change",
	GroupID: "sync",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(args, func(s *absync.Scheduler, changeID int64) error {
			if err := s.Retry(changeID); err != nil {
				output.Error("retry: %v", err)
				return err
			}
			output.Success("Change #%d re-queued", changeID)
			return nil
		})
	},
}

func init() {
	conflictsListCmd.Flags().Int("limit", 20, "Maximum conflicts to show")
	conflictsListCmd.Flags().Bool("json", false, "Output JSON")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsAcceptLocalCmd, conflictsAcceptRemoteCmd, conflictsDiscardCmd)
	rootCmd.AddCommand(conflictsCmd, retryCmd)
}
