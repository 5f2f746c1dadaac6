package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/pvm-sh/pvm/pkg/version"
	"github.com/spf13/cobra"
)

// Style definitions
var (
	// Color profile detection
	profile = colorprofile.Detect(os.Stdout, os.Environ())

	activeStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))
		}
		return lipgloss.NewStyle().Bold(true)
	}()

	dirStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
		}
		return lipgloss.NewStyle().Faint(true)
	}()
)

var listOutput string

// ListCommand represents the list command
var ListCommand = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed Python versions",
	Long:    `Lists every version in the registry, oldest first. The active version is marked with '*'.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		return RunList(s, listOutput, cmd.OutOrStdout())
	},
}

func init() {
	ListCommand.Flags().StringVarP(&listOutput, "output", "o", "text", "Output format (text, json, yaml)")
}

type listEntry struct {
	Version string `json:"version" yaml:"version"`
	Dir     string `json:"dir" yaml:"dir"`
	Active  bool   `json:"active" yaml:"active"`
}

// RunList writes the registry contents to w in the requested format
func RunList(s *store.Store, format string, w io.Writer) error {
	versions, err := s.Load()
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return version.Compare(versions[i].Version, versions[j].Version) < 0
	})

	entries := make([]listEntry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, listEntry{Version: v.Version, Dir: v.Dir, Active: v.Active})
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode versions: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to encode versions: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "text", "":
		return writeVersionTable(w, entries)
	default:
		return fmt.Errorf("unsupported output format: %s (expected text, json or yaml)", format)
	}
}

func writeVersionTable(w io.Writer, entries []listEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No Python versions installed. Run 'pvm install <version>' to add one.")
		return nil
	}

	width := 0
	for _, e := range entries {
		if len(e.Version) > width {
			width = len(e.Version)
		}
	}

	for _, e := range entries {
		name := fmt.Sprintf("%-*s", width, e.Version)
		marker := " "
		if e.Active {
			marker = "*"
			name = activeStyle.Render(name)
		}
		fmt.Fprintf(w, "%s %s  %s\n", marker, name, dirStyle.Render(e.Dir))
	}
	return nil
}
