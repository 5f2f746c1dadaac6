package asset

import (
	"fmt"
	"strings"

	"github.com/buildkite/interpolate"
	"github.com/pvm-sh/pvm/pkg/version"
)

const (
	// DefaultBaseURL is the distribution host
	DefaultBaseURL = "https://www.python.org"
	// Lang is the language segment used in distribution paths
	Lang = "python"

	filenameTemplate = "${LANG}-${VERSION}-${ARCH}.zip"
	urlTemplate      = "${BASE_URL}/ftp/${LANG}/${VERSION}/" + filenameTemplate
)

// Filename returns the distribution archive name for version and arch,
// e.g. python-3.11.0-amd64.zip
func Filename(ver, arch string) (string, error) {
	return render(filenameTemplate, DefaultBaseURL, ver, arch)
}

// URL returns the download URL of the distribution archive. An empty
// baseURL means DefaultBaseURL.
func URL(baseURL, ver, arch string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return render(urlTemplate, strings.TrimSuffix(baseURL, "/"), ver, arch)
}

func render(template, baseURL, ver, arch string) (string, error) {
	if !version.IsValid(ver) {
		return "", fmt.Errorf("invalid version format: %q", ver)
	}
	if arch == "" || strings.ContainsAny(arch, `/\.`) {
		return "", fmt.Errorf("invalid architecture: %q", arch)
	}

	env := interpolate.NewMapEnv(map[string]string{
		"BASE_URL": baseURL,
		"LANG":     Lang,
		"VERSION":  ver,
		"ARCH":     arch,
	})
	result, err := interpolate.Interpolate(env, template)
	if err != nil {
		return "", fmt.Errorf("failed to interpolate asset template: %w", err)
	}
	return result, nil
}
