package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/shirou/gopsutil/v4/host"
)

// Archive architecture tags used in distribution file names
const (
	ArchAMD64 = "amd64"
	ArchARM64 = "arm64"
	ArchWin32 = "win32"
)

// kernelArch is swapped out in tests. gopsutil only offers a context-free
// variant for the kernel architecture.
var kernelArch = func(context.Context) (string, error) {
	return host.KernelArch()
}

// DetectArch returns the archive tag for the host machine. The kernel
// architecture is preferred over runtime.GOARCH so that a 32-bit pvm binary
// on a 64-bit host still picks the 64-bit distribution. If the kernel cannot
// be queried the Go runtime architecture is used.
func DetectArch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("architecture detection cancelled: %w", err)
	}

	raw, err := kernelArch(ctx)
	if err != nil || raw == "" {
		if ctx.Err() != nil {
			return "", fmt.Errorf("architecture detection cancelled: %w", ctx.Err())
		}
		if err != nil {
			log.WithError(err).Debug("kernel architecture unavailable, using runtime architecture")
		} else {
			log.WithField("goarch", runtime.GOARCH).Debug("kernel architecture empty, using runtime architecture")
		}
		raw = runtime.GOARCH
	}

	tag, err := NormalizeArch(raw)
	if err != nil {
		// The kernel may report a name we do not know while Go does
		if fallback, ferr := NormalizeArch(runtime.GOARCH); ferr == nil {
			log.WithField("arch", raw).Debug("unknown kernel architecture, using runtime architecture")
			return fallback, nil
		}
		return "", err
	}
	return tag, nil
}

// NormalizeArch maps kernel or Go architecture names to archive tags
func NormalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return ArchAMD64, nil
	case "arm64", "aarch64", "armv8", "arm64e":
		return ArchARM64, nil
	case "386", "i386", "i686", "x86":
		return ArchWin32, nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}
