package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/output"
	absync "github.com/ferris/airbase/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Reconcile queued local changes with the server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")
		watch, _ := cmd.Flags().GetBool("watch")

		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		scheduler := newScheduler(database)

		if statusOnly {
			return runSyncStatus(cmd, database, scheduler)
		}

		if watch {
			return runSyncWatch(cmd, database)
		}

		stats, err := scheduler.SyncNow(cmd.Context())
		if err != nil {
			output.Error("sync: %v", err)
			return err
		}
		output.SyncStats(stats)
		if stats.Conflicts > 0 {
			output.Warning("run 'ab conflicts list' to inspect conflicts")
		}
		return nil
	},
}

func runSyncStatus(cmd *cobra.Command, database *db.DB, scheduler *absync.Scheduler) error {
	info, err := scheduler.Status(cmd.Context())
	if err != nil {
		output.Error("sync status: %v", err)
		return err
	}

	online := "offline"
	if info.IsOnline {
		online = "online"
	}
	fmt.Printf("Server:    %s (%s)\n", online, newClient().BaseURL)
	fmt.Printf("Pending:   %d changes\n", info.PendingChanges)
	fmt.Printf("Syncing:   %v\n", info.SyncInProgress)
	fmt.Printf("Last sync: %s\n", output.Timestamp(info.LastSyncTime))

	conflicts, err := database.ListConflicts(10)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		output.Warning("%d unresolved conflicts (ab conflicts list)", len(conflicts))
	}
	return nil
}

var pendingCmd = &cobra.Command{
	Use:     "pending",
	Short:   "List queued changes",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		changes, err := database.ListPending()
		if err != nil {
			output.Error("list pending: %v", err)
			return err
		}
		if len(changes) == 0 {
			fmt.Println("Nothing pending.")
			return nil
		}
		for i := range changes {
			output.PendingChange(&changes[i])
		}
		return nil
	},
}

// runSyncWatch runs the scheduler's timer loop until interrupted.
func runSyncWatch(cmd *cobra.Command, database *db.DB) error {
	scheduler := newScheduler(database)

	// One immediate cycle before settling into the timer.
	stats, err := scheduler.SyncNow(cmd.Context())
	if err != nil {
		output.Warning("initial sync: %v", err)
	} else {
		output.SyncStats(stats)
	}

	conflicts := scheduler.Subscribe()
	go func() {
		for c := range conflicts {
			output.Warning("conflict on %s/%s (change #%d)", c.EntityType, c.EntityID, c.ChangeID)
		}
	}()

	scheduler.Start(cmd.Context())
	defer scheduler.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	fmt.Println("Watching for changes; Ctrl-C to stop.")
	<-sig
	return nil
}

func init() {
	syncCmd.Flags().Bool("status", false, "Show sync status only")
	syncCmd.Flags().Bool("watch", false, "Keep syncing on an interval")
	rootCmd.AddCommand(syncCmd, pendingCmd)
}
