// Package envconfig reads and updates the optional per-user defaults file
// (<store-root>/defaults.env) consulted by the start command to pre-fill
// flags the caller did not set.
package envconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Config holds the known default values from the defaults file.
type Config struct {
	Title      string // CODEX_TASKS_DEFAULT_TITLE
	ConfigFile string // CODEX_TASKS_DEFAULT_CONFIG_FILE
	WorkingDir string // CODEX_TASKS_DEFAULT_WORKING_DIR
	Repo       string // CODEX_TASKS_DEFAULT_REPO
}

// knownKeys is the ordered list of keys managed by this package.
var knownKeys = []string{
	"CODEX_TASKS_DEFAULT_TITLE",
	"CODEX_TASKS_DEFAULT_CONFIG_FILE",
	"CODEX_TASKS_DEFAULT_WORKING_DIR",
	"CODEX_TASKS_DEFAULT_REPO",
}

// Parse reads the defaults file at path and returns the known values.
// Lines that are blank or start with "#" are ignored. Unknown keys are
// skipped so a hand-edited file never errors out the CLI.
// A missing file is not an error: it simply yields a zero Config.
func Parse(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		switch k {
		case "CODEX_TASKS_DEFAULT_TITLE":
			cfg.Title = v
		case "CODEX_TASKS_DEFAULT_CONFIG_FILE":
			cfg.ConfigFile = v
		case "CODEX_TASKS_DEFAULT_WORKING_DIR":
			cfg.WorkingDir = v
		case "CODEX_TASKS_DEFAULT_REPO":
			cfg.Repo = v
		}
	}
	return cfg, nil
}

// validateEnvValue rejects values that contain newlines or null bytes which
// could corrupt the defaults file format.
func validateEnvValue(v string) error {
	if strings.ContainsAny(v, "\n\r\x00") {
		return fmt.Errorf("value contains invalid characters")
	}
	return nil
}

// Update merges changes into the defaults file at path, creating it if
// absent.
//
// Each pointer field controls how the corresponding key is handled:
//   - nil → leave the existing line unchanged
//   - non-nil, non-empty → set to the provided value
//   - non-nil, empty → remove the line (clear the value)
//
// Keys not already present in the file are appended when non-empty.
// Comments and unrecognized keys are preserved verbatim.
func Update(path string, title, configFile, workingDir, repo *string) error {
	for _, ptr := range []*string{title, configFile, workingDir, repo} {
		if ptr != nil && *ptr != "" {
			if err := validateEnvValue(*ptr); err != nil {
				return err
			}
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read defaults file: %w", err)
	}

	updates := map[string]*string{
		"CODEX_TASKS_DEFAULT_TITLE":       title,
		"CODEX_TASKS_DEFAULT_CONFIG_FILE": configFile,
		"CODEX_TASKS_DEFAULT_WORKING_DIR": workingDir,
		"CODEX_TASKS_DEFAULT_REPO":        repo,
	}

	lines := strings.Split(string(raw), "\n")
	seen := map[string]bool{}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || trimmed == "" {
			continue
		}
		k, _, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		ptr, known := updates[k]
		if !known {
			continue
		}
		seen[k] = true
		if ptr == nil {
			continue
		}
		if *ptr == "" {
			lines[i] = ""
		} else {
			lines[i] = k + "=" + *ptr
		}
	}

	for _, k := range knownKeys {
		ptr := updates[k]
		if seen[k] || ptr == nil || *ptr == "" {
			continue
		}
		lines = append(lines, k+"="+*ptr)
	}

	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	content := strings.TrimRight(strings.Join(kept, "\n"), "\n") + "\n"

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		return fmt.Errorf("write defaults file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename defaults file: %w", err)
	}
	return nil
}

// MaskToken returns a redacted representation of a secret-shaped value for
// display. Short or empty values are fully masked. Only the first 3 and
// last 3 characters are exposed otherwise.
func MaskToken(v string) string {
	if v == "" {
		return ""
	}
	if len(v) < 12 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + "..." + v[len(v)-3:]
}
