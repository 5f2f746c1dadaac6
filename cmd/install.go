package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/pvm-sh/pvm/pkg/config"
	"github.com/pvm-sh/pvm/pkg/httpclient"
	"github.com/pvm-sh/pvm/pkg/install"
	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Flags for install command
	installDir string
	installYes bool
)

// InstallCommand represents the install command
var InstallCommand = &cobra.Command{
	Use:   "install <version>",
	Short: "Download and install a Python version",
	Long: `Download the distribution archive for an exact MAJOR.MINOR.PATCH version,
check every entry name before unpacking, extract it, and record it in the registry.

If the target directory already exists you are asked before it is replaced.`,
	Example: `  # Install into <root>/versions/3.11.0
  pvm install 3.11.0

  # Install to a custom directory
  pvm install 3.12.1 --dir ~/pythons/3.12.1

  # Replace an existing directory without asking
  pvm install 3.11.0 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := InstallOptions{
			Version: args[0],
			Dir:     installDir,
			Yes:     installYes,
			Quiet:   quiet,
		}
		return RunInstall(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	InstallCommand.Flags().StringVarP(&installDir, "dir", "d", "", "Installation directory (default: <versions_dir>/<version>)")
	InstallCommand.Flags().BoolVarP(&installYes, "yes", "y", false, "Replace an existing installation directory without asking")
}

// InstallOptions are the inputs of a single install run
type InstallOptions struct {
	Version string
	Dir     string
	Yes     bool
	Quiet   bool

	// overridden in tests
	baseURL string
	arch    string
}

// RunInstall installs one version. Prompts are read from in; results go to
// out and progress to errOut when it is a terminal.
func RunInstall(ctx context.Context, cfg *config.Config, opts InstallOptions, in io.Reader, out, errOut io.Writer) error {
	dir := opts.Dir
	if dir == "" {
		dir = cfg.InstallDir(opts.Version)
	} else {
		dir = config.ExpandPath(dir)
	}

	installer := &install.Installer{
		Registry:   store.New(cfg.Root),
		BaseURL:    opts.baseURL,
		Arch:       opts.arch,
		Force:      opts.Yes || cfg.AssumeYes,
		HTTPClient: httpclient.New(cfg.HTTPTimeout),
		Confirm: func(existing string) (bool, error) {
			return confirm(in, out, fmt.Sprintf("Directory %s already exists. Replace it?", existing))
		},
	}

	var progress *progressPrinter
	if !opts.Quiet && isTerminal(errOut) {
		progress = &progressPrinter{w: errOut, lastPercent: -1}
		installer.Progress = progress.download
		installer.ExtractProgress = progress.extract
	}

	result, err := installer.Install(ctx, opts.Version, dir)
	if progress != nil {
		progress.finish()
	}
	if err != nil {
		return fmt.Errorf("failed to install Python %s: %w", opts.Version, err)
	}

	if result.Cancelled {
		fmt.Fprintln(out, "Installation cancelled.")
		return nil
	}

	log.WithField("url", result.URL).Debug("installed from")
	fmt.Fprintf(out, "Python %s installed to %s\n", result.Version, result.Dir)
	fmt.Fprintf(out, "Run 'pvm use %s' to make it the active version.\n", result.Version)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressPrinter redraws a single status line per phase
type progressPrinter struct {
	w           io.Writer
	lastPercent int
	// phase whose line has not been terminated yet
	open string
}

func (p *progressPrinter) download(downloaded, total int64) {
	if total <= 0 {
		p.begin("download")
		fmt.Fprintf(p.w, "\rDownloading... %s", formatBytes(downloaded))
		return
	}

	percent := int(downloaded * 100 / total)
	if percent == p.lastPercent {
		return
	}
	p.lastPercent = percent
	p.begin("download")
	fmt.Fprintf(p.w, "\rDownloading... %3d%% (%s / %s)", percent, formatBytes(downloaded), formatBytes(total))
	if downloaded >= total {
		p.finish()
	}
}

func (p *progressPrinter) extract(done, total int) {
	p.begin("extract")
	fmt.Fprintf(p.w, "\rExtracting... %d/%d files", done, total)
	if done >= total {
		p.finish()
	}
}

func (p *progressPrinter) begin(phase string) {
	if p.open != "" && p.open != phase {
		p.finish()
	}
	p.open = phase
}

func (p *progressPrinter) finish() {
	if p.open != "" {
		fmt.Fprintln(p.w)
		p.open = ""
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
