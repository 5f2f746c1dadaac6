package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/spf13/cobra"
)

// WhichCommand represents the which command
var WhichCommand = &cobra.Command{
	Use:   "which [version]",
	Short: "Print the installation directory of a version",
	Long:  `Prints the directory a version is installed in. Without an argument the active version is used.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		ver := ""
		if len(args) == 1 {
			ver = args[0]
		}
		return RunWhich(s, ver, cmd.OutOrStdout())
	},
}

// RunWhich prints the directory of ver, or of the active version when ver
// is empty
func RunWhich(s *store.Store, ver string, w io.Writer) error {
	if ver == "" {
		active, err := s.Active()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no active Python version, run 'pvm use <version>' first")
			}
			return err
		}
		fmt.Fprintln(w, active.Dir)
		return nil
	}

	dir, err := s.FindInstallDir(ver)
	if err != nil {
		return notInstalledError(s, ver, err)
	}
	fmt.Fprintln(w, dir)
	return nil
}
