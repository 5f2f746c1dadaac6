package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/pvm-sh/pvm/pkg/httpclient"
)

// ProgressFunc is a callback for download progress. total is -1 when the
// server did not send a Content-Length.
type ProgressFunc func(downloaded, total int64)

// StatusError is returned when the server answers with anything but 200 OK
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Downloader fetches files over HTTP. A single attempt is made per call.
type Downloader struct {
	Client   *http.Client
	Progress ProgressFunc
}

// NewDownloader creates a downloader using a pvm HTTP client
func NewDownloader() *Downloader {
	return &Downloader{Client: httpclient.New(0)}
}

// Download downloads url to destPath. The body is streamed into a temporary
// file next to destPath which is renamed on success and removed otherwise.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	client := d.Client
	if client == nil {
		client = httpclient.New(0)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	log.WithField("url", url).Debug("starting download")
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to download file")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	defer tmpFile.Close()

	written, err := copyWithProgress(tmpFile, resp.Body, resp.ContentLength, d.Progress)
	if err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	if written == 0 {
		return fmt.Errorf("no content downloaded from %s", url)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("incomplete download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return errors.Wrap(err, "failed to move downloaded file")
	}

	log.WithField("bytes", written).Debug("download complete")
	return nil
}

// copyWithProgress copies data and reports progress after every chunk
func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	if total <= 0 {
		total = -1
	}

	var written int64
	buf := make([]byte, 32*1024) // 32KB buffer

	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[0:nr])
			if writeErr != nil {
				return written, writeErr
			}
			written += int64(nw)

			if progress != nil {
				progress(written, total)
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
