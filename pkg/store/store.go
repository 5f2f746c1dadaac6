// Package store persists the list of installed Python versions as a JSON
// document under the pvm root directory.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const (
	// VersionsFileName is the registry document inside the root directory
	VersionsFileName = "versions.json"
	lockFileName     = "versions.lock"
)

// ErrNotFound is returned when a version is not in the registry.
var ErrNotFound = errors.New("version not found in registry")

// InstalledVersion is one tracked installation.
type InstalledVersion struct {
	Version string `json:"version"`
	Dir     string `json:"dir"`
	Active  bool   `json:"using"`
}

// Store reads and writes the registry document. All operations load the
// whole document and write it back; there is no in-memory cache.
type Store struct {
	root string
}

// New returns a store rooted at root. Nothing is touched on disk until Init
// or a mutating call.
func New(root string) *Store {
	return &Store{root: root}
}

// Path returns the location of the registry document
func (s *Store) Path() string {
	return filepath.Join(s.root, VersionsFileName)
}

// Init creates the root directory and an empty registry if none exists.
// Existing contents are left as they are.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "failed to create pvm root %s", s.root)
	}
	log.WithField("root", s.root).Debug("initialized store")

	if _, err := os.Stat(s.Path()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat %s", s.Path())
	}

	if err := s.Save([]InstalledVersion{}); err != nil {
		return err
	}
	log.WithField("path", s.Path()).Debug("created versions file")
	return nil
}

// Load returns all registry entries. A missing document is an empty
// registry; so is one that fails to parse, which is logged and left on disk
// untouched.
func (s *Store) Load() ([]InstalledVersion, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return []InstalledVersion{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", s.Path())
	}

	var versions []InstalledVersion
	if err := json.Unmarshal(data, &versions); err != nil {
		log.WithError(err).WithField("path", s.Path()).Error("failed to decode versions file, treating it as empty")
		return []InstalledVersion{}, nil
	}
	if versions == nil {
		versions = []InstalledVersion{}
	}
	return versions, nil
}

// Save replaces the registry document with versions. The document is
// written to a temporary file in the root and renamed into place so readers
// never see a partial write.
func (s *Store) Save(versions []InstalledVersion) error {
	if versions == nil {
		versions = []InstalledVersion{}
	}
	data, err := json.MarshalIndent(versions, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode versions")
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "failed to create pvm root %s", s.root)
	}

	tmpFile, err := os.CreateTemp(s.root, "."+VersionsFileName+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to write versions")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.Path())
	}

	success = true
	return nil
}

// Add records version as installed in dir. If the version is already
// registered its directory is replaced in place and its active flag kept.
func (s *Store) Add(version, dir string) error {
	return s.update(func(versions []InstalledVersion) ([]InstalledVersion, error) {
		for i := range versions {
			if versions[i].Version == version {
				log.WithField("version", version).Debug("version already registered, updating directory")
				versions[i].Dir = dir
				return versions, nil
			}
		}
		return append(versions, InstalledVersion{Version: version, Dir: dir}), nil
	})
}

// Remove deletes every entry for version. Removing an unknown version is a no-op.
func (s *Store) Remove(version string) error {
	return s.update(func(versions []InstalledVersion) ([]InstalledVersion, error) {
		kept := versions[:0]
		for _, v := range versions {
			if v.Version != version {
				kept = append(kept, v)
			}
		}
		return kept, nil
	})
}

// SetActive marks version as the active installation and clears the flag on
// every other entry.
func (s *Store) SetActive(version string) error {
	return s.update(func(versions []InstalledVersion) ([]InstalledVersion, error) {
		found := false
		for i := range versions {
			versions[i].Active = versions[i].Version == version && !found
			if versions[i].Active {
				found = true
			}
		}
		if !found {
			return nil, errors.Wrap(ErrNotFound, version)
		}
		return versions, nil
	})
}

// FindInstallDir returns the directory of the first entry for version.
func (s *Store) FindInstallDir(version string) (string, error) {
	v, err := s.Find(version)
	if err != nil {
		return "", err
	}
	return v.Dir, nil
}

// Find returns the first entry for version.
func (s *Store) Find(version string) (InstalledVersion, error) {
	versions, err := s.Load()
	if err != nil {
		return InstalledVersion{}, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return InstalledVersion{}, errors.Wrap(ErrNotFound, version)
}

// Active returns the entry currently marked active.
func (s *Store) Active() (InstalledVersion, error) {
	versions, err := s.Load()
	if err != nil {
		return InstalledVersion{}, err
	}
	for _, v := range versions {
		if v.Active {
			return v, nil
		}
	}
	return InstalledVersion{}, errors.Wrap(ErrNotFound, "no active version")
}

// update runs a read-modify-write cycle while holding the registry lock.
func (s *Store) update(mutate func([]InstalledVersion) ([]InstalledVersion, error)) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "failed to create pvm root %s", s.root)
	}

	l, err := waitForLock(filepath.Join(s.root, lockFileName))
	if err != nil {
		return err
	}
	defer func() {
		if err := l.release(); err != nil {
			log.WithError(err).Warn("failed to release registry lock")
		}
	}()

	versions, err := s.Load()
	if err != nil {
		return err
	}
	versions, err = mutate(versions)
	if err != nil {
		return err
	}
	return s.Save(versions)
}
