package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// RootEnv overrides the pvm root directory
	RootEnv = "PVM_ROOT"
	// FileName is the optional settings file inside the root
	FileName = "config.yml"
	// DefaultHTTPTimeout applies when config.yml does not set http_timeout
	DefaultHTTPTimeout = 5 * time.Minute
)

// Config holds pvm settings. Root comes from ResolveRoot, never from the file.
type Config struct {
	Root        string
	VersionsDir string
	HTTPTimeout time.Duration
	AssumeYes   bool
}

// Default returns the settings used when no config file exists
func Default(root string) *Config {
	return &Config{
		Root:        root,
		VersionsDir: filepath.Join(root, "versions"),
		HTTPTimeout: DefaultHTTPTimeout,
	}
}

// Load reads root/config.yml on top of the defaults. A missing file is not
// an error.
func Load(root string) (*Config, error) {
	cfg := Default(root)
	path := filepath.Join(root, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	var raw struct {
		VersionsDir string `yaml:"versions_dir"`
		HTTPTimeout string `yaml:"http_timeout"`
		AssumeYes   bool   `yaml:"assume_yes"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}

	if raw.VersionsDir != "" {
		cfg.VersionsDir = ExpandPath(raw.VersionsDir)
		if !filepath.IsAbs(cfg.VersionsDir) {
			cfg.VersionsDir = filepath.Join(root, cfg.VersionsDir)
		}
	}
	if raw.HTTPTimeout != "" {
		timeout, err := time.ParseDuration(raw.HTTPTimeout)
		if err != nil || timeout <= 0 {
			return nil, errors.Errorf("invalid http_timeout %q in %s", raw.HTTPTimeout, path)
		}
		cfg.HTTPTimeout = timeout
	}
	cfg.AssumeYes = raw.AssumeYes

	return cfg, nil
}

// ResolveRoot determines the pvm root directory. An explicit value wins,
// then $PVM_ROOT, then the per-user location: %LOCALAPPDATA%\.pvm on
// Windows and <user config dir>/pvm elsewhere.
func ResolveRoot(explicit string) (string, error) {
	root := explicit
	if root == "" {
		root = os.Getenv(RootEnv)
	}
	if root == "" {
		if runtime.GOOS == "windows" {
			if local := os.Getenv("LOCALAPPDATA"); local != "" {
				root = filepath.Join(local, ".pvm")
			}
		}
	}
	if root == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", errors.Wrap(err, "could not determine pvm root directory")
		}
		root = filepath.Join(dir, "pvm")
	}

	absPath, err := filepath.Abs(ExpandPath(root))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve pvm root directory")
	}
	return absPath, nil
}

// InstallDir returns the directory a version is installed to when the user
// does not name one
func (c *Config) InstallDir(version string) string {
	return filepath.Join(c.VersionsDir, version)
}

// ExpandPath expands a leading ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return os.ExpandEnv(path)
}
