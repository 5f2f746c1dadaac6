package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/pvm-sh/pvm/pkg/version"
	"github.com/spf13/cobra"
)

// UseCommand represents the use command
var UseCommand = &cobra.Command{
	Use:   "use <version>",
	Short: "Mark an installed version as active",
	Long: `Marks a version as the active one in the registry. The shell environment is not
changed; run 'pvm env' to print the PATH entries for the active version.`,
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
		return RunUse(s, args[0], cmd.OutOrStdout())
	},
}

// RunUse marks ver as active
func RunUse(s *store.Store, ver string, w io.Writer) error {
	if !version.IsValid(ver) {
		return fmt.Errorf("invalid version format: %q (expected MAJOR.MINOR.PATCH)", ver)
	}
	if err := s.SetActive(ver); err != nil {
		return notInstalledError(s, ver, err)
	}

	dir, err := s.FindInstallDir(ver)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Now using Python %s (%s)\n", ver, dir)
	return nil
}

// notInstalledError turns a registry miss into a message naming the
// versions that are installed
func notInstalledError(s *store.Store, ver string, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	versions, loadErr := s.Load()
	if loadErr != nil || len(versions) == 0 {
		return fmt.Errorf("Python %s is not installed", ver)
	}
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, v.Version)
	}
	version.Sort(names)
	return fmt.Errorf("Python %s is not installed (installed: %s)", ver, strings.Join(names, ", "))
}
