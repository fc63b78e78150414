package refs

import (
	"fmt"
	"strings"

	"github.com/samoht/gitobj/pkg/gitpath"
)

// badNameParts are substrings no reference name may contain.
var badNameParts = []string{"..", "//", "@{", "\\", " ", "~", "^", ":", "?", "*", "["}

// ValidateName checks a fully qualified reference name. HEAD is always
// valid; everything else must live under refs/ and follow the usual
// character rules.
func ValidateName(name string) error {
	if name == gitpath.HeadFile {
		return nil
	}
	if name == "" {
		return fmt.Errorf("reference name cannot be empty")
	}
	if !strings.HasPrefix(name, gitpath.RefsDirName+"/") {
		return fmt.Errorf("reference %q must be under refs/", name)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("reference %q has an invalid ending", name)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("reference %q must not end in .lock", name)
	}
	for _, part := range badNameParts {
		if strings.Contains(name, part) {
			return fmt.Errorf("reference %q contains %q", name, part)
		}
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("reference %q contains a control character", name)
		}
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			return fmt.Errorf("reference %q has an empty path segment", name)
		}
		if strings.HasPrefix(seg, ".") {
			return fmt.Errorf("reference %q has a segment starting with '.'", name)
		}
	}
	return nil
}

// Qualify expands a shorthand name to its fully qualified form: HEAD and
// refs/... pass through, anything else lands under refs/heads/.
func Qualify(name string) string {
	if name == gitpath.HeadFile || strings.HasPrefix(name, gitpath.RefsDirName+"/") {
		return name
	}
	return gitpath.RefsDirName + "/heads/" + name
}
