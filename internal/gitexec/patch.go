package gitexec

import (
	"fmt"
	"os"
	"strings"
)

// RejectTraversal implements the defense described in spec.md §4.4.4:
// before invoking git on a remote-supplied patch, reject any diff header
// line (`diff --git a/… b/…`, `--- a/…`, `+++ b/…`) that contains `..`
// anywhere, so a name such as `a..b` is rejected as well as a `..` path
// component.
func RejectTraversal(patch string) error {
	for _, line := range strings.Split(patch, "\n") {
		if !isDiffHeaderLine(line) {
			continue
		}
		if strings.Contains(line, "..") {
			return fmt.Errorf("patch header contains path traversal: %q", strings.TrimSpace(line))
		}
	}
	return nil
}

func isDiffHeaderLine(line string) bool {
	return strings.HasPrefix(line, "diff --git ") ||
		strings.HasPrefix(line, "--- ") ||
		strings.HasPrefix(line, "+++ ")
}

func writeTempPatch(patch string) (string, error) {
	f, err := os.CreateTemp("", "copilot-bridge-patch-*.diff")
	if err != nil {
		return "", fmt.Errorf("create temp patch file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(patch); err != nil {
		return "", fmt.Errorf("write temp patch file: %w", err)
	}
	return f.Name(), nil
}

func removeTempFile(path string) {
	_ = os.Remove(path)
}
