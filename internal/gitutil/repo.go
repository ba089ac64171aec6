// Package gitutil shells out to the git binary for the handful of
// repository operations the task service needs: detecting a repo,
// resolving its default branch and commit hashes, and cloning one as a
// task's working directory.
package gitutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IsGitRepo reports whether path is inside a git repository.
func IsGitRepo(path string) bool {
	return exec.Command("git", "-C", path, "rev-parse", "--git-dir").Run() == nil
}

// DefaultBranch returns the default branch name for a repo (tries origin/HEAD,
// falls back to the current local HEAD branch, then "main").
func DefaultBranch(repoPath string) (string, error) {
	// Try symbolic ref for origin/HEAD first (most reliable for cloned repos).
	out, err := exec.Command("git", "-C", repoPath, "symbolic-ref", "--short", "refs/remotes/origin/HEAD").Output()
	if err == nil {
		branch := strings.TrimSpace(strings.TrimPrefix(string(out), "origin/"))
		if branch != "" && branch != string(out) {
			return branch, nil
		}
	}
	// Fall back to current HEAD branch name.
	out, err = exec.Command("git", "-C", repoPath, "branch", "--show-current").Output()
	if err != nil {
		return "main", nil
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" {
		return "main", nil // detached HEAD
	}
	return branch, nil
}

// GetCommitHash returns the current HEAD commit hash in repoPath.
func GetCommitHash(repoPath string) (string, error) {
	out, err := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GetCommitHashForRef returns the commit hash for a specific ref in repoPath.
func GetCommitHashForRef(repoPath, ref string) (string, error) {
	out, err := exec.Command("git", "-C", repoPath, "rev-parse", ref).Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s in %s: %w", ref, repoPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone clones repoSpec into targetDir and, if ref is non-empty, fetches and
// checks out that ref. targetDir must not already exist. repoSpec may be a
// remote URL or a local path, exactly as accepted by "git clone".
func Clone(repoSpec, ref, targetDir string) error {
	if _, err := os.Stat(targetDir); err == nil {
		return fmt.Errorf("clone target %s already exists", targetDir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat clone target %s: %w", targetDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", targetDir, err)
	}

	if out, err := exec.Command("git", "clone", repoSpec, targetDir).CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w: %s", repoSpec, err, strings.TrimSpace(string(out)))
	}

	if ref == "" {
		return nil
	}

	if out, err := exec.Command("git", "-C", targetDir, "fetch", "origin", ref).CombinedOutput(); err != nil {
		return fmt.Errorf("git fetch origin %s: %w: %s", ref, err, strings.TrimSpace(string(out)))
	}
	if out, err := exec.Command("git", "-C", targetDir, "checkout", ref).CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s: %w: %s", ref, err, strings.TrimSpace(string(out)))
	}
	return nil
}
