package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pvm-sh/pvm/pkg/pathsafe"
	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/spf13/cobra"
)

const (
	shellSh         = "sh"
	shellPowerShell = "powershell"
)

var envShell string

// EnvCommand represents the env command
var EnvCommand = &cobra.Command{
	Use:   "env",
	Short: "Print shell code that puts the active version on PATH",
	Long: `Prints a snippet that prepends the active version's directory and its Scripts
directory to PATH. pvm never edits PATH itself; evaluate the output in your shell.`,
	Example: `  # sh, bash, zsh
  eval "$(pvm env)"

  # PowerShell
  pvm env --shell powershell | Invoke-Expression`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		return RunEnv(s, envShell, cmd.OutOrStdout())
	},
}

func init() {
	EnvCommand.Flags().StringVar(&envShell, "shell", defaultShell(), "Shell syntax to print (sh, powershell)")
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return shellPowerShell
	}
	return shellSh
}

// RunEnv prints the PATH snippet for the active version
func RunEnv(s *store.Store, shell string, w io.Writer) error {
	active, err := s.Active()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no active Python version, run 'pvm use <version>' first")
		}
		return err
	}

	entries := []string{active.Dir, filepath.Join(active.Dir, "Scripts")}
	if err := pathsafe.ValidateValue(strings.Join(entries, string(os.PathListSeparator))); err != nil {
		return fmt.Errorf("refusing to print PATH for Python %s: %w", active.Version, err)
	}

	// Single quotes keep $ and \ literal in both shells
	switch shell {
	case shellSh:
		fmt.Fprintf(w, "export PATH=%s:\"$PATH\"\n", shQuote(strings.Join(entries, ":")))
	case shellPowerShell:
		fmt.Fprintf(w, "$env:Path = %s + $env:Path\n", psQuote(strings.Join(entries, ";")+";"))
	default:
		return fmt.Errorf("unsupported shell: %s (expected %s or %s)", shell, shellSh, shellPowerShell)
	}
	return nil
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
