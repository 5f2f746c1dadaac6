package version

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// versionPattern accepts exactly MAJOR.MINOR.PATCH with ASCII digits only.
var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// IsValid reports whether s is a plain three-part release version such as
// "3.11.0". Prefixes, pre-release or build suffixes, whitespace and path
// separators are all rejected.
func IsValid(s string) bool {
	return versionPattern.MatchString(s)
}

// Compare orders two versions numerically. It returns -1, 0 or +1.
// Versions semver cannot parse (e.g. leading zeros) sort before valid ones,
// and ties fall back to a plain string comparison so the order is total.
func Compare(a, b string) int {
	if c := semver.Compare("v"+a, "v"+b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Sort sorts versions in ascending order in place.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}
