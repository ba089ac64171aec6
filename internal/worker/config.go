// Package worker implements the detached child process that drives a single
// codex task: it performs the handshake with its launcher, spawns `codex
// exec` for the initial prompt and every subsequent resume, streams the
// assistant's stdout/stderr into the task log, and serves further prompts
// delivered over a named pipe until told to quit.
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"changkun.de/codextasks/internal/taskstore"
)

// Environment variables used to pass launch parameters to a freshly exec'd
// worker process, and to force a test-only early exit right after the PID
// and handshake would normally be recorded.
const (
	TitleEnvVar          = "CODEX_TASK_TITLE"
	PromptEnvVar         = "CODEX_TASK_PROMPT"
	ExitAfterStartEnvVar = "CODEX_TASKS_EXIT_AFTER_START"
)

// Config is assembled from CLI arguments and environment variables before a
// worker starts running.
type Config struct {
	StoreRoot     string
	Title         string
	InitialPrompt string
	ConfigPath    string
	WorkingDir    string
}

// NewConfig builds a worker configuration, preferring explicit arguments and
// falling back to environment variables for title/prompt when absent.
func NewConfig(storeRoot, title, initialPrompt, configPath, workingDir string) (Config, error) {
	if title == "" {
		title = os.Getenv(TitleEnvVar)
	}
	if initialPrompt == "" {
		initialPrompt = os.Getenv(PromptEnvVar)
	}
	if strings.TrimSpace(initialPrompt) == "" {
		return Config{}, fmt.Errorf("initial prompt is required when launching a worker")
	}

	var err error
	if configPath != "" {
		configPath, err = canonicalize(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("prepare worker config path: %w", err)
		}
	}
	if workingDir != "" {
		workingDir, err = canonicalize(workingDir)
		if err != nil {
			return Config{}, fmt.Errorf("prepare worker working directory: %w", err)
		}
	}

	return Config{
		StoreRoot:     storeRoot,
		Title:         title,
		InitialPrompt: initialPrompt,
		ConfigPath:    configPath,
		WorkingDir:    workingDir,
	}, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return resolved, nil
}

// Store returns a task store rooted at the configured location.
func (c Config) Store() *taskstore.Store {
	return taskstore.New(c.StoreRoot)
}

// CodexHomeOverride returns the directory that should act as CODEX_HOME
// when a custom config file was provided, or "" when none was.
func (c Config) CodexHomeOverride() (string, error) {
	if c.ConfigPath == "" {
		return "", nil
	}
	parent := filepath.Dir(c.ConfigPath)
	if parent == "" || parent == "." {
		return "", fmt.Errorf("config file %s does not have a parent directory", c.ConfigPath)
	}
	return parent, nil
}

// ShouldExitAfterStart reports whether the test-only early-exit override is
// set in the environment.
func ShouldExitAfterStart() bool {
	_, ok := os.LookupEnv(ExitAfterStartEnvVar)
	return ok
}
