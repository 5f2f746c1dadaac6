// Package pathsafe validates directories before they are offered to the
// user's shell as PATH entries.
package pathsafe

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// MaxValueLength is the longest PATH value accepted. It matches the limit
// of the Windows environment editor so values stay portable.
const MaxValueLength = 2047

var dangerousChars = []struct {
	char string
	desc string
}{
	// Check longer patterns first
	{"$(", "command substitution"},
	{"`", "command substitution backtick"},
	{"&&", "logical AND"},
	{"||", "logical OR"},
	// Then single characters
	{";", "semicolon"},
	{"&", "ampersand"},
	{"|", "pipe"},
	{">", "output redirection"},
	{"<", "input redirection"},
	{`"`, "quote"},
	{"?", "wildcard"},
	{"*", "wildcard"},
}

// ValidateEntry checks a single PATH entry. Entries must be non-blank, free
// of control characters and shell metacharacters, and must not contain a
// ".." segment.
func ValidateEntry(entry string) error {
	if strings.TrimSpace(entry) == "" {
		return fmt.Errorf("path entry is empty")
	}

	for _, r := range entry {
		if unicode.IsControl(r) {
			return fmt.Errorf("path entry %q contains control character (code %d)", entry, r)
		}
	}

	for _, dc := range dangerousChars {
		if strings.Contains(entry, dc.char) {
			return fmt.Errorf("path entry %q contains dangerous character '%s' (%s)", entry, dc.char, dc.desc)
		}
	}

	for _, segment := range strings.FieldsFunc(entry, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return fmt.Errorf("path entry %q contains path traversal", entry)
		}
	}

	return nil
}

// ValidateValue checks a complete PATH value split on the OS list
// separator. Empty segments (doubled or trailing separators) are tolerated.
func ValidateValue(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("PATH value is empty")
	}
	if len(value) > MaxValueLength {
		return fmt.Errorf("PATH value is %d characters, limit is %d", len(value), MaxValueLength)
	}

	for _, entry := range strings.Split(value, string(os.PathListSeparator)) {
		if entry == "" {
			continue
		}
		if err := ValidateEntry(entry); err != nil {
			return err
		}
	}
	return nil
}
