package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/config"
	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/remote"
	"github.com/ferris/airbase/internal/service"
	absync "github.com/ferris/airbase/internal/sync"
)

var (
	version string
	baseDir string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "ab",
	Short: "Offline-first CLI for bases, tables, and records",
	Long: `ab - an offline-first client for an airbase server.

Work against a local copy of your bases, tables, and records while
disconnected; queued changes are reconciled with the server once
connectivity returns.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initBaseDir)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

func initBaseDir() {
	var err error
	baseDir, err = os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
}

// getBaseDir returns the base directory for the local database
func getBaseDir() string {
	return baseDir
}

// newClient builds the remote API client from stored config and credentials.
func newClient() *remote.Client {
	client := remote.New(config.GetServerURL(), config.GetAPIKey())
	client.Token = config.GetToken()
	return client
}

// newService opens the local database and wires the entity service over it.
// The caller closes the returned DB.
func newService() (*service.Service, *db.DB, error) {
	database, err := db.Open(getBaseDir())
	if err != nil {
		return nil, nil, err
	}
	return service.New(database, newClient()), database, nil
}

// newScheduler wires a sync scheduler over an open database.
func newScheduler(database *db.DB) *absync.Scheduler {
	return absync.New(database, newClient(), absync.Options{
		Interval:   config.GetSyncInterval(),
		RetryLimit: config.GetRetryLimit(),
	})
}

// autoSyncAfterMutation runs a quick drain cycle after a mutating command.
// Errors are logged, not returned; the queue keeps the change either way.
func autoSyncAfterMutation(database *db.DB) {
	if !config.AutoSyncEnabled() || !config.IsAuthenticated() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := newScheduler(database).SyncNow(ctx); err != nil {
		slog.Debug("autosync", "err", err)
	}
}
