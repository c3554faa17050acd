// Package commands implements the coursevault CLI.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "coursevault",
	Short: "CourseVault - resumable course backup transfers",
	Long: `CourseVault uploads large course backup archives to a remote vault
service in verified chunks, resuming interrupted transfers without
re-sending confirmed data.

The run command is designed to be invoked from cron; a store-backed lock
keeps concurrent runs from stepping on each other.

Use "coursevault [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/coursevault/coursevault.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(holdCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// defaultConfigPath returns where init writes and load searches first.
func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coursevault", "coursevault.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "coursevault.yaml"
	}
	return filepath.Join(home, ".config", "coursevault", "coursevault.yaml")
}
