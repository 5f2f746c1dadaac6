package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	rootDir string
	verbose bool
	quiet   bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "pvm",
	Short: "Install and switch between Python distributions",
	Long: `pvm (Python version manager) downloads official Python distribution archives,
checks them before unpacking, and keeps track of every installed version.

Installed versions are recorded in versions.json under the pvm root directory
(--root, $PVM_ROOT, or the per-user config directory).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.New(cmd.ErrOrStderr()))
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		log.Debugf("Root directory flag: %q", rootDir)
	},
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	RootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "pvm root directory (default: $PVM_ROOT or the user config directory)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	RootCmd.AddGroup(&cobra.Group{
		ID:    "versions",
		Title: "Version Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "shell",
		Title: "Shell Commands:",
	})

	RootCmd.SetHelpCommandGroupID("shell")
	RootCmd.SetCompletionCommandGroupID("shell")

	InstallCommand.GroupID = "versions"
	ListCommand.GroupID = "versions"
	UseCommand.GroupID = "versions"
	UninstallCommand.GroupID = "versions"
	WhichCommand.GroupID = "shell"
	EnvCommand.GroupID = "shell"

	RootCmd.AddCommand(InstallCommand)
	RootCmd.AddCommand(ListCommand)
	RootCmd.AddCommand(UseCommand)
	RootCmd.AddCommand(UninstallCommand)
	RootCmd.AddCommand(WhichCommand)
	RootCmd.AddCommand(EnvCommand)
}
