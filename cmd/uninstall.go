package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/spf13/cobra"
)

var (
	// Flags for uninstall command
	uninstallKeepFiles bool
	uninstallYes       bool
)

// UninstallCommand represents the uninstall command
var UninstallCommand = &cobra.Command{
	Use:   "uninstall <version>",
	Short: "Remove an installed Python version",
	Long: `Removes a version from the registry and deletes its installation directory.
Use --keep-files to only forget the version and leave the directory in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		opts := UninstallOptions{
			Version:   args[0],
			KeepFiles: uninstallKeepFiles,
			Yes:       uninstallYes || cfg.AssumeYes,
		}
		return RunUninstall(s, opts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	UninstallCommand.Flags().BoolVar(&uninstallKeepFiles, "keep-files", false, "Keep the installation directory on disk")
	UninstallCommand.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "Delete the installation directory without asking")
}

// UninstallOptions are the inputs of a single uninstall run
type UninstallOptions struct {
	Version   string
	KeepFiles bool
	Yes       bool
}

// RunUninstall deletes the installation directory (unless KeepFiles is set)
// and then drops the registry entry
func RunUninstall(s *store.Store, opts UninstallOptions, in io.Reader, out io.Writer) error {
	entry, err := s.Find(opts.Version)
	if err != nil {
		return notInstalledError(s, opts.Version, err)
	}

	if !opts.KeepFiles {
		dir := filepath.Clean(entry.Dir)
		if !filepath.IsAbs(dir) || filepath.Dir(dir) == dir {
			return fmt.Errorf("refusing to delete %q: not an absolute installation directory", entry.Dir)
		}

		if !opts.Yes {
			ok, err := confirm(in, out, fmt.Sprintf("Delete %s?", dir))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Uninstall cancelled.")
				return nil
			}
		}

		log.WithField("dir", dir).Debug("removing installation directory")
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}

	if err := s.Remove(opts.Version); err != nil {
		return fmt.Errorf("failed to update registry: %w", err)
	}

	if entry.Active {
		fmt.Fprintf(out, "Python %s was the active version; run 'pvm use <version>' to pick another.\n", opts.Version)
	}
	fmt.Fprintf(out, "Python %s uninstalled.\n", opts.Version)
	return nil
}
