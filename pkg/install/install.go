// Package install downloads, checks, unpacks and registers a Python
// distribution archive.
package install

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pvm-sh/pvm/pkg/archive"
	"github.com/pvm-sh/pvm/pkg/asset"
	"github.com/pvm-sh/pvm/pkg/fetch"
	"github.com/pvm-sh/pvm/pkg/platform"
	"github.com/pvm-sh/pvm/pkg/version"
)

// State is a step of the install pipeline
type State int

const (
	Validating State = iota
	Downloading
	ExtractValidating
	Extracting
	Registering
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Downloading:
		return "downloading"
	case ExtractValidating:
		return "extract-validating"
	case Extracting:
		return "extracting"
	case Registering:
		return "registering"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	stagingPrefix = ".pvm-staging-"
	backupPrefix  = ".pvm-backup-"
)

// Registry records completed installations
type Registry interface {
	Add(version, dir string) error
}

// ConfirmFunc is asked before an existing directory is replaced
type ConfirmFunc func(dir string) (bool, error)

// Installer runs the install pipeline. Registry is required; everything
// else has a usable zero value.
type Installer struct {
	Registry Registry

	// BaseURL overrides the distribution host
	BaseURL string
	// Arch overrides host architecture detection
	Arch string
	// Force replaces an existing target without asking
	Force bool
	// Confirm is consulted when the target exists and Force is unset.
	// A nil Confirm declines. Its errors abort with ErrConfirm.
	Confirm ConfirmFunc

	Progress        fetch.ProgressFunc
	ExtractProgress archive.ProgressFunc
	HTTPClient      *http.Client
	// TempDir is where the download directory is created, os.TempDir() if empty
	TempDir string
}

// Result reports a finished pipeline run
type Result struct {
	Version   string
	Dir       string
	URL       string
	Cancelled bool
}

// Install installs ver into targetDir and records it in the registry.
// A declined overwrite returns a cancelled Result and no error.
func (i *Installer) Install(ctx context.Context, ver, targetDir string) (*Result, error) {
	logger := log.WithFields(log.Fields{"version": ver, "dir": targetDir})

	result, err := i.install(ctx, logger, ver, targetDir)
	if err != nil {
		fields := log.Fields{"state": Aborted}
		var installErr *Error
		if errors.As(err, &installErr) {
			fields["failed_state"] = installErr.State
		}
		logger.WithError(err).WithFields(fields).Error("install aborted")
		return nil, err
	}
	return result, nil
}

func (i *Installer) install(ctx context.Context, logger *log.Entry, ver, targetDir string) (*Result, error) {
	transition(logger, Validating)
	if !version.IsValid(ver) {
		return nil, newError(ErrInvalidVersion, Validating, errors.Errorf("%q", ver))
	}
	if i.Registry == nil {
		return nil, newError(ErrRegistry, Validating, errors.New("no registry configured"))
	}

	target, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, newError(ErrTarget, Validating, errors.Wrap(err, "failed to resolve target directory"))
	}

	exists, err := pathExists(target)
	if err != nil {
		return nil, newError(ErrTarget, Validating, err)
	}
	if exists && !i.Force {
		proceed := false
		if i.Confirm != nil {
			if proceed, err = i.Confirm(target); err != nil {
				return nil, newError(ErrConfirm, Validating, err)
			}
		}
		if !proceed {
			logger.Info("install cancelled, target directory kept")
			return &Result{Version: ver, Dir: target, Cancelled: true}, nil
		}
	}

	transition(logger, Downloading)
	arch := i.Arch
	if arch == "" {
		if arch, err = platform.DetectArch(ctx); err != nil {
			return nil, newError(ErrDownload, Downloading, err)
		}
	}
	url, err := asset.URL(i.BaseURL, ver, arch)
	if err != nil {
		return nil, newError(ErrDownload, Downloading, err)
	}

	tmpDir, err := os.MkdirTemp(i.TempDir, "pvm-download-*")
	if err != nil {
		return nil, newError(ErrDownload, Downloading, errors.Wrap(err, "failed to create temporary directory"))
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.WithError(err).Warn("failed to remove temporary directory")
		}
	}()

	filename, err := asset.Filename(ver, arch)
	if err != nil {
		return nil, newError(ErrDownload, Downloading, err)
	}
	archivePath := filepath.Join(tmpDir, filename)
	downloader := &fetch.Downloader{Client: i.HTTPClient, Progress: i.Progress}
	logger.WithField("url", url).Info("downloading")
	if err := downloader.Download(ctx, url, archivePath); err != nil {
		return nil, newError(ErrDownload, Downloading, err)
	}

	transition(logger, ExtractValidating)
	extractor := &archive.Extractor{Progress: i.ExtractProgress}
	entries, err := extractor.Entries(archivePath)
	if err != nil {
		return nil, newError(ErrExtraction, ExtractValidating, err)
	}
	if err := archive.Validate(entries); err != nil {
		return nil, newError(ErrUnsafeArchive, ExtractValidating, err)
	}

	transition(logger, Extracting)
	backup, err := stageAndPromote(extractor, archivePath, target)
	if err != nil {
		return nil, newError(ErrExtraction, Extracting, err)
	}

	transition(logger, Registering)
	if err := i.Registry.Add(ver, target); err != nil {
		rollback(logger, target, backup)
		return nil, newError(ErrRegistry, Registering, err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			logger.WithError(err).WithField("backup", backup).Warn("failed to remove previous installation")
		}
	}

	transition(logger, Done)
	logger.Info("installed")
	return &Result{Version: ver, Dir: target, URL: url}, nil
}

func pathExists(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat %s", path)
	}
	return true, nil
}

// stageAndPromote extracts into a sibling staging directory and renames it
// onto target. An existing target is moved aside and its new location
// returned so it can be restored or discarded.
func stageAndPromote(extractor *archive.Extractor, archivePath, target string) (string, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", parent)
	}

	staging := filepath.Join(parent, stagingPrefix+uuid.NewString())
	if err := extractor.Extract(archivePath, staging); err != nil {
		os.RemoveAll(staging)
		return "", err
	}

	var backup string
	if _, err := os.Lstat(target); err == nil {
		backup = filepath.Join(parent, backupPrefix+uuid.NewString())
		if err := os.Rename(target, backup); err != nil {
			os.RemoveAll(staging)
			return "", errors.Wrap(err, "failed to move existing installation aside")
		}
	}

	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		if backup != "" {
			os.Rename(backup, target)
		}
		return "", errors.Wrap(err, "failed to move extracted files into place")
	}
	return backup, nil
}

// rollback removes a freshly promoted target and puts the previous
// installation back.
func rollback(logger *log.Entry, target, backup string) {
	if err := os.RemoveAll(target); err != nil {
		logger.WithError(err).Warn("failed to remove extracted files")
		return
	}
	if backup == "" {
		return
	}
	if err := os.Rename(backup, target); err != nil {
		logger.WithError(err).WithField("backup", backup).Warn("failed to restore previous installation")
	}
}

func transition(logger *log.Entry, s State) {
	logger.WithField("state", s).Debug("install state")
}
