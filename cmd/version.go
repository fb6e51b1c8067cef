package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferris/airbase/internal/output"
	ver "github.com/ferris/airbase/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show the ab version",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("ab %s\n", version)

		if check, _ := cmd.Flags().GetBool("check"); check {
			result := ver.CheckCached(version)
			switch {
			case result.Error != nil:
				output.Warning("update check failed: %v", result.Error)
			case result.HasUpdate:
				output.Info("update available: %s", result.LatestVersion)
				if result.UpdateURL != "" {
					output.Info("%s", result.UpdateURL)
				}
			case ver.IsDevelopment(version):
				output.Info("development build, skipping update check")
			default:
				output.Success("up to date")
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "Check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
