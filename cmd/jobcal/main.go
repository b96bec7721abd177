package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	appLog "jobcal/internal/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "jobcal",
	Short: "Plan appliance delivery, installation and pickup jobs",
	Long: `jobcal - schedule appliance jobs and derive everything else.

Each job carries a scheduled arrival, a drive time and a crew size. From
those jobcal works out prep start, departure, estimated return, status,
checklist progress and the Delivery warranty window, keeps a calendar file
in step and fires reminders while serving.

Examples:
  jobcal add --type Delivery --title "Fridge for Lee" --at "2025-04-07 10:00" --drive 30
  jobcal list --status upcoming
  jobcal toggle 3f2a "Take photos"
  jobcal serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./jobcal.yaml", "Path to config file")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(driveTimeCmd)
	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	defer appLog.Sync()
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
