package crawler

import (
	"fmt"
	"regexp"
	"strings"
)

var archiveNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,200}\.zip$`)

// CheckArchiveName rejects names that could escape the archive directory or
// were never produced by the archive builder.
func CheckArchiveName(name string) error {
	if !archiveNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
