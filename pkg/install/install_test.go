package install

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pvm-sh/pvm/internal/testutil"
	"github.com/pvm-sh/pvm/pkg/archive"
	"github.com/pvm-sh/pvm/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stubDistribution = []testutil.ZipEntry{
	{Name: "python.exe", Content: "MZ stub"},
	{Name: "python311.zip", Content: "stdlib"},
	{Name: "Lib/"},
	{Name: "Lib/site.py", Content: "# site"},
}

type testServer struct {
	*httptest.Server
	requests atomic.Int32
	paths    chan string
}

func newTestServer(t *testing.T, status int, body []byte) *testServer {
	t.Helper()
	ts := &testServer{paths: make(chan string, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		ts.paths <- r.URL.Path
		if len(body) > 0 {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

type failingRegistry struct{}

func (failingRegistry) Add(version, dir string) error {
	return errors.New("disk full")
}

func newInstaller(t *testing.T, baseURL string, reg Registry) (*Installer, string) {
	t.Helper()
	tmp := t.TempDir()
	return &Installer{
		Registry: reg,
		BaseURL:  baseURL,
		Arch:     "amd64",
		TempDir:  tmp,
	}, tmp
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func assertNoLeftovers(t *testing.T, parent string) {
	t.Helper()
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), stagingPrefix), "staging dir left behind: %s", e.Name())
		assert.False(t, strings.HasPrefix(e.Name(), backupPrefix), "backup dir left behind: %s", e.Name())
	}
}

func TestInstallEndToEnd(t *testing.T) {
	root := testutil.SetupTestEnv(t)
	reg := store.New(root)
	require.NoError(t, reg.Init())

	server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
	inst, tmp := newInstaller(t, server.URL, reg)

	var lastDownloaded, lastTotal int64
	inst.Progress = func(downloaded, total int64) {
		lastDownloaded, lastTotal = downloaded, total
	}
	var extracted int
	inst.ExtractProgress = func(done, total int) {
		extracted = done
		assert.Equal(t, len(stubDistribution), total)
	}

	target := filepath.Join(t.TempDir(), "versions", "3.11.0")
	result, err := inst.Install(context.Background(), "3.11.0", target)
	require.NoError(t, err)

	assert.False(t, result.Cancelled)
	assert.Equal(t, "3.11.0", result.Version)
	assert.Equal(t, target, result.Dir)
	assert.Equal(t, server.URL+"/ftp/python/3.11.0/python-3.11.0-amd64.zip", result.URL)
	assert.Equal(t, "/ftp/python/3.11.0/python-3.11.0-amd64.zip", <-server.paths)

	content, err := os.ReadFile(filepath.Join(target, "Lib", "site.py"))
	require.NoError(t, err)
	assert.Equal(t, "# site", string(content))
	assert.FileExists(t, filepath.Join(target, "python.exe"))

	assert.Equal(t, len(stubDistribution), extracted)
	assert.Equal(t, lastTotal, lastDownloaded)
	assert.Positive(t, lastDownloaded)

	versions, err := reg.Load()
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, store.InstalledVersion{Version: "3.11.0", Dir: target}, versions[0])

	assertDirEmpty(t, tmp)
	assertNoLeftovers(t, filepath.Dir(target))
}

func TestInstallInvalidVersion(t *testing.T) {
	tests := []string{"3.11", "3.11.0.1", "3.11.0a1", "v3.11.0", "", "../3.11.0"}

	for _, ver := range tests {
		t.Run(ver, func(t *testing.T) {
			root := testutil.SetupTestEnv(t)
			reg := store.New(root)
			server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
			inst, tmp := newInstaller(t, server.URL, reg)
			inst.Confirm = func(string) (bool, error) {
				t.Fatal("confirmation must not be requested")
				return false, nil
			}

			target := filepath.Join(t.TempDir(), "target")
			result, err := inst.Install(context.Background(), ver, target)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidVersion)

			var installErr *Error
			require.ErrorAs(t, err, &installErr)
			assert.Equal(t, Validating, installErr.State)

			assert.Zero(t, server.requests.Load())
			assert.NoDirExists(t, target)
			assert.NoFileExists(t, reg.Path())
			assertDirEmpty(t, tmp)
		})
	}
}

func TestInstallUnsafeArchive(t *testing.T) {
	tests := []struct {
		name    string
		entries []testutil.ZipEntry
	}{
		{
			name:    "absolute path",
			entries: []testutil.ZipEntry{{Name: "python.exe", Content: "x"}, {Name: "/etc/passwd", Content: "root"}},
		},
		{
			name:    "path traversal",
			entries: []testutil.ZipEntry{{Name: "a/../../etc/passwd", Content: "root"}},
		},
		{
			name:    "null byte",
			entries: []testutil.ZipEntry{{Name: "a\x00b", Content: "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testutil.SetupTestEnv(t)
			reg := store.New(root)
			server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, tt.entries))
			inst, tmp := newInstaller(t, server.URL, reg)

			parent := t.TempDir()
			target := filepath.Join(parent, "3.11.0")
			_, err := inst.Install(context.Background(), "3.11.0", target)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafeArchive)

			var unsafeErr *archive.UnsafeEntryError
			assert.ErrorAs(t, err, &unsafeErr)

			assert.NoDirExists(t, target)
			assertDirEmpty(t, parent)
			assertDirEmpty(t, tmp)

			versions, err := reg.Load()
			require.NoError(t, err)
			assert.Empty(t, versions)
		})
	}
}

func TestInstallExistingTarget(t *testing.T) {
	setup := func(t *testing.T) (*Installer, *store.Store, string, string) {
		root := testutil.SetupTestEnv(t)
		reg := store.New(root)
		server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
		inst, tmp := newInstaller(t, server.URL, reg)

		target := filepath.Join(t.TempDir(), "3.11.0")
		require.NoError(t, os.MkdirAll(target, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(target, "old.txt"), []byte("old"), 0644))
		return inst, reg, target, tmp
	}

	t.Run("declined", func(t *testing.T) {
		inst, reg, target, tmp := setup(t)
		var asked string
		inst.Confirm = func(dir string) (bool, error) {
			asked = dir
			return false, nil
		}

		result, err := inst.Install(context.Background(), "3.11.0", target)
		require.NoError(t, err)
		assert.True(t, result.Cancelled)
		assert.Equal(t, target, asked)

		assert.FileExists(t, filepath.Join(target, "old.txt"))
		assert.NoFileExists(t, filepath.Join(target, "python.exe"))
		assert.NoFileExists(t, reg.Path())
		assertDirEmpty(t, tmp)
	})

	t.Run("no confirm callback declines", func(t *testing.T) {
		inst, _, target, _ := setup(t)

		result, err := inst.Install(context.Background(), "3.11.0", target)
		require.NoError(t, err)
		assert.True(t, result.Cancelled)
		assert.FileExists(t, filepath.Join(target, "old.txt"))
	})

	t.Run("confirmed", func(t *testing.T) {
		inst, reg, target, _ := setup(t)
		inst.Confirm = func(string) (bool, error) { return true, nil }

		result, err := inst.Install(context.Background(), "3.11.0", target)
		require.NoError(t, err)
		assert.False(t, result.Cancelled)

		assert.NoFileExists(t, filepath.Join(target, "old.txt"))
		assert.FileExists(t, filepath.Join(target, "python.exe"))
		assertNoLeftovers(t, filepath.Dir(target))

		dir, err := reg.FindInstallDir("3.11.0")
		require.NoError(t, err)
		assert.Equal(t, target, dir)
	})

	t.Run("force skips confirmation", func(t *testing.T) {
		inst, _, target, _ := setup(t)
		inst.Force = true
		inst.Confirm = func(string) (bool, error) {
			t.Fatal("confirmation must not be requested")
			return false, nil
		}

		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(target, "python.exe"))
	})

	t.Run("confirm error aborts", func(t *testing.T) {
		inst, _, target, _ := setup(t)
		inst.Confirm = func(string) (bool, error) { return false, errors.New("stdin closed") }

		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfirm)
		assert.NotErrorIs(t, err, ErrExtraction)
		assert.Contains(t, err.Error(), "stdin closed")

		var installErr *Error
		require.ErrorAs(t, err, &installErr)
		assert.Equal(t, Validating, installErr.State)
		assert.FileExists(t, filepath.Join(target, "old.txt"))
	})
}

func TestInstallDownloadFailure(t *testing.T) {
	root := testutil.SetupTestEnv(t)
	reg := store.New(root)
	server := newTestServer(t, http.StatusNotFound, nil)
	inst, tmp := newInstaller(t, server.URL, reg)

	target := filepath.Join(t.TempDir(), "3.99.0")
	_, err := inst.Install(context.Background(), "3.99.0", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), server.requests.Load(), "downloads are not retried")

	var installErr *Error
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, Downloading, installErr.State)

	assert.NoDirExists(t, target)
	assertDirEmpty(t, tmp)
}

func TestInstallCancelled(t *testing.T) {
	root := testutil.SetupTestEnv(t)
	reg := store.New(root)
	server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
	inst, tmp := newInstaller(t, server.URL, reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := filepath.Join(t.TempDir(), "3.11.0")
	_, err := inst.Install(ctx, "3.11.0", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, target)
	assertDirEmpty(t, tmp)
}

func TestInstallExtractionFailure(t *testing.T) {
	// "Lib" is written as a file, so creating "Lib/site.py" fails
	entries := []testutil.ZipEntry{
		{Name: "python.exe", Content: "MZ"},
		{Name: "Lib", Content: "not a directory"},
		{Name: "Lib/site.py", Content: "# site"},
	}

	t.Run("not a zip", func(t *testing.T) {
		root := testutil.SetupTestEnv(t)
		server := newTestServer(t, http.StatusOK, []byte("<html>not found</html>"))
		inst, tmp := newInstaller(t, server.URL, store.New(root))

		target := filepath.Join(t.TempDir(), "3.11.0")
		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExtraction)
		assert.NoDirExists(t, target)
		assertDirEmpty(t, tmp)
	})

	t.Run("fresh target", func(t *testing.T) {
		root := testutil.SetupTestEnv(t)
		reg := store.New(root)
		server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, entries))
		inst, tmp := newInstaller(t, server.URL, reg)

		parent := t.TempDir()
		target := filepath.Join(parent, "3.11.0")
		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExtraction)

		var installErr *Error
		require.ErrorAs(t, err, &installErr)
		assert.Equal(t, Extracting, installErr.State)

		assert.NoDirExists(t, target)
		assertDirEmpty(t, parent)
		assertDirEmpty(t, tmp)

		versions, err := reg.Load()
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("existing target untouched", func(t *testing.T) {
		root := testutil.SetupTestEnv(t)
		server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, entries))
		inst, _ := newInstaller(t, server.URL, store.New(root))
		inst.Force = true

		target := filepath.Join(t.TempDir(), "3.11.0")
		require.NoError(t, os.MkdirAll(target, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(target, "old.txt"), []byte("old"), 0644))

		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.FileExists(t, filepath.Join(target, "old.txt"))
		assertNoLeftovers(t, filepath.Dir(target))
	})
}

func TestInstallRegistryFailure(t *testing.T) {
	t.Run("fresh target removed", func(t *testing.T) {
		testutil.SetupTestEnv(t)
		server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
		inst, tmp := newInstaller(t, server.URL, failingRegistry{})

		parent := t.TempDir()
		target := filepath.Join(parent, "3.11.0")
		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRegistry)
		assert.Contains(t, err.Error(), "disk full")

		var installErr *Error
		require.ErrorAs(t, err, &installErr)
		assert.Equal(t, Registering, installErr.State)

		assert.NoDirExists(t, target)
		assertDirEmpty(t, parent)
		assertDirEmpty(t, tmp)
	})

	t.Run("previous installation restored", func(t *testing.T) {
		testutil.SetupTestEnv(t)
		server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
		inst, _ := newInstaller(t, server.URL, failingRegistry{})
		inst.Force = true

		target := filepath.Join(t.TempDir(), "3.11.0")
		require.NoError(t, os.MkdirAll(target, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(target, "old.txt"), []byte("old"), 0644))

		_, err := inst.Install(context.Background(), "3.11.0", target)
		require.Error(t, err)
		assert.FileExists(t, filepath.Join(target, "old.txt"))
		assert.NoFileExists(t, filepath.Join(target, "python.exe"))
		assertNoLeftovers(t, filepath.Dir(target))
	})
}

func TestInstallWaitsForBusyRegistry(t *testing.T) {
	root := testutil.SetupTestEnv(t)
	reg := store.New(root)
	require.NoError(t, reg.Init())

	// Another pvm command holds the registry lock for a moment
	lockPath := filepath.Join(root, "versions.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1\n"), 0600))
	released := make(chan error, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		released <- os.Remove(lockPath)
	}()

	server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
	inst, _ := newInstaller(t, server.URL, reg)

	target := filepath.Join(t.TempDir(), "3.11.0")
	_, err := inst.Install(context.Background(), "3.11.0", target)
	require.NoError(t, <-released)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(target, "python.exe"))
	dir, err := reg.FindInstallDir("3.11.0")
	require.NoError(t, err)
	assert.Equal(t, target, dir)
}

func TestInstallReinstallKeepsSingleEntry(t *testing.T) {
	root := testutil.SetupTestEnv(t)
	reg := store.New(root)
	server := newTestServer(t, http.StatusOK, testutil.ZipBytes(t, stubDistribution))
	inst, _ := newInstaller(t, server.URL, reg)
	inst.Force = true

	target := filepath.Join(t.TempDir(), "3.11.0")
	_, err := inst.Install(context.Background(), "3.11.0", target)
	require.NoError(t, err)
	require.NoError(t, reg.SetActive("3.11.0"))

	_, err = inst.Install(context.Background(), "3.11.0", target)
	require.NoError(t, err)

	versions, err := reg.Load()
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].Active)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "validating", Validating.String())
	assert.Equal(t, "extract-validating", ExtractValidating.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "unknown", State(42).String())
}
