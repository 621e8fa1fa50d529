// Package workspace manages short-lived, scoped git checkouts: the "Repo
// Workspace" component of spec.md §2/§4.2.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Workspace is a checked-out repository rooted at Path. Callers must call
// Release on every exit path (spec.md §3 invariant: "every spawned
// workspace is released on every termination path").
type Workspace struct {
	Path   string
	Branch string
}

// Clone performs a shallow (depth=1) clone of cloneURL at branch into a
// fresh temp directory, authenticating with token as an HTTP basic-auth
// credential (GitLab accepts any non-empty username with a PAT as the
// password). Grounded on spec.md §4.2's clone contract; uses go-git rather
// than shelling out to the git CLI — unlike the teacher's `gh` subprocess
// wrapper in internal/github/clone.go — so the token never appears in a
// process argv visible via `ps`, and clone failures come back as typed
// errors instead of parsed stderr.
func Clone(ctx context.Context, cloneURL, branch, token string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", "copilot-bridge-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}

	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           cloneURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Auth: &http.BasicAuth{
			Username: "copilot-bridge",
			Password: token,
		},
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, redactToken(err, token)
	}

	return &Workspace{Path: dir, Branch: branch}, nil
}

// Release deletes the workspace's checkout directory. Safe to call more
// than once; safe to call on a nil Workspace.
func (w *Workspace) Release() error {
	if w == nil || w.Path == "" {
		return nil
	}
	return os.RemoveAll(w.Path)
}

// ReleaseLogged calls Release and logs any failure instead of returning
// it — the common call shape at the tail of a deferred cleanup.
func (w *Workspace) ReleaseLogged() {
	if err := w.Release(); err != nil {
		fmt.Fprintf(os.Stderr, "[Workspace] release failed for %s: %v\n", w.Path, err)
	}
}

// Abs resolves a path relative to the workspace root, rejecting any
// resolution that escapes it.
func (w *Workspace) Abs(rel string) (string, error) {
	joined := filepath.Join(w.Path, rel)
	cleanRoot := filepath.Clean(w.Path) + string(os.PathSeparator)
	if joined != filepath.Clean(w.Path) && !strings.HasPrefix(joined, cleanRoot) {
		return "", fmt.Errorf("path %q escapes workspace root", rel)
	}
	return joined, nil
}

// EnsureIgnoreFile creates name (e.g. ".gitignore") at the workspace root
// with the given contents, additively: if the file already exists, it is
// left untouched. Refuses to write through a symlink or to any path that
// Abs reports as escaping the workspace root, per spec.md §4.5.3's "ensure
// a language-appropriate ignore file exists (additive; symlink and
// out-of-tree resolutions refused)".
func (w *Workspace) EnsureIgnoreFile(name, contents string) error {
	path, err := w.Abs(name)
	if err != nil {
		return err
	}

	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("refusing to write %q: existing entry is a symlink", name)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", name, err)
	}

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func redactToken(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	msg := err.Error()
	return fmt.Errorf("%s", redactSubstring(msg, token))
}

func redactSubstring(s, secret string) string {
	if secret == "" {
		return s
	}
	out := s
	for {
		idx := indexOf(out, secret)
		if idx < 0 {
			return out
		}
		out = out[:idx] + "***" + out[idx+len(secret):]
	}
}

func indexOf(haystack, needle string) int {
	n := len(needle)
	if n == 0 {
		return -1
	}
	for i := 0; i+n <= len(haystack); i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}
	return -1
}
