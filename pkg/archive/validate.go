package archive

import (
	"fmt"
	"strings"
)

// UnsafeEntryError describes the first archive entry rejected by Validate
type UnsafeEntryError struct {
	Name   string
	Reason string
}

func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("unsafe archive entry %q: %s", e.Name, e.Reason)
}

// Validate checks every entry name of an archive before anything is written.
// A single absolute path, parent directory segment or NUL byte rejects the
// whole archive.
func Validate(entryNames []string) error {
	for _, name := range entryNames {
		if reason := unsafeReason(name); reason != "" {
			return &UnsafeEntryError{Name: name, Reason: reason}
		}
	}
	return nil
}

// IsSafe reports whether all entry names pass Validate
func IsSafe(entryNames []string) bool {
	return Validate(entryNames) == nil
}

func unsafeReason(name string) string {
	if strings.ContainsRune(name, 0) {
		return "contains null byte"
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || hasVolumeName(name) {
		return "absolute path"
	}
	for _, segment := range strings.FieldsFunc(name, isSeparator) {
		if segment == ".." {
			return "path traversal"
		}
	}
	return ""
}

// hasVolumeName detects Windows drive prefixes such as "C:" regardless of
// the host OS, since the archive may have been built anywhere.
func hasVolumeName(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
