package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/pvm-sh/pvm/pkg/config"
	"github.com/pvm-sh/pvm/pkg/store"
)

// loadConfig resolves the root directory and reads config.yml from it
func loadConfig() (*config.Config, error) {
	root, err := config.ResolveRoot(rootDir)
	if err != nil {
		return nil, err
	}
	log.Debugf("Using pvm root: %s", root)

	cfg, err := config.Load(root)
	if err != nil {
		log.WithError(err).Errorf("Failed to load config from: %s", root)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore returns the registry under the configured root, creating an
// empty one on first use
func openStore(cfg *config.Config) (*store.Store, error) {
	s := store.New(cfg.Root)
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	return s, nil
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything other than y or yes, including end of input, is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	if err == io.EOF && answer == "" {
		fmt.Fprintln(out)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
