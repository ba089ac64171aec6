// Package service implements the task lifecycle operations shared by the
// CLI and MCP control surfaces: starting and resuming workers, deriving and
// reporting status, listing, following logs, stopping, and archiving.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sys/unix"

	"changkun.de/codextasks/internal/gitutil"
	"changkun.de/codextasks/internal/launcher"
	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/taskstore"
)

const configFileName = "config.toml"

// archiveCacheTTL bounds how long a resolved archive location is trusted
// before a lookup re-walks the archive tree. Only meaningful for
// long-lived callers (the MCP server); the CLI constructs a fresh Service
// per invocation so the cache never has time to matter there.
const archiveCacheTTL = 30 * time.Second

// Service encapsulates task store interactions used by both the CLI and
// MCP adapters.
type Service struct {
	store        *taskstore.Store
	archiveCache *cache.Cache
}

// Option configures a Service constructed via New.
type Option func(*Service)

// WithArchiveCache enables memoization of archive lookups, scoped to the
// lifetime of a single Service. The MCP server (a long-lived process) uses
// this to avoid re-walking the archive tree on every status/send request;
// the CLI, which builds a fresh Service per invocation, has no need for it.
func WithArchiveCache() Option {
	return func(s *Service) {
		s.archiveCache = cache.New(archiveCacheTTL, 2*archiveCacheTTL)
	}
}

// New creates a service backed by an explicit task store.
func New(store *taskstore.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithDefaultStore creates a service using the default on-disk task store
// layout.
func WithDefaultStore(opts ...Option) (*Service, error) {
	store, err := taskstore.Default()
	if err != nil {
		return nil, wrapError(KindIO, "failed to resolve default task store", err)
	}
	return New(store, opts...), nil
}

// findArchived locates an archived task by id, consulting the archive
// cache (if enabled) before walking the archive tree.
func (s *Service) findArchived(taskID string) (*taskstore.Paths, *taskstore.Metadata, error) {
	if s.archiveCache != nil {
		if cached, ok := s.archiveCache.Get(taskID); ok {
			entry := cached.(archiveCacheEntry)
			if entry.paths == nil {
				return nil, nil, nil
			}
			return entry.paths, entry.metadata, nil
		}
	}

	paths, metadata, err := s.store.FindArchived(taskID)
	if err != nil {
		return nil, nil, err
	}
	if s.archiveCache != nil {
		s.archiveCache.SetDefault(taskID, archiveCacheEntry{paths: paths, metadata: metadata})
	}
	return paths, metadata, nil
}

type archiveCacheEntry struct {
	paths    *taskstore.Paths
	metadata *taskstore.Metadata
}

// invalidateArchived drops a cached archive lookup, used after this
// process itself moves a task into the archive.
func (s *Service) invalidateArchived(taskID string) {
	if s.archiveCache != nil {
		s.archiveCache.Delete(taskID)
	}
}

// StartTask launches a new task worker and returns the thread id it
// assigns itself once the assistant announces a thread.
func (s *Service) StartTask(ctx context.Context, params StartTaskParams) (StartTaskResult, error) {
	ctx, span := startSpan(ctx, "service.start_task", "")
	var err error
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(params.Prompt) == "" {
		err = newError(KindValidation, "prompt must not be empty")
		return StartTaskResult{}, err
	}

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return StartTaskResult{}, err
	}

	configFile, resolveErr := resolveConfigFile(params.ConfigFile)
	if resolveErr != nil {
		err = resolveErr
		return StartTaskResult{}, err
	}

	workingDir, prepareErr := prepareWorkingDirectory(ctx, params.WorkingDir, params.RepoURL, params.RepoRef)
	if prepareErr != nil {
		err = prepareErr
		return StartTaskResult{}, err
	}
	if workingDir == "" {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			err = wrapError(KindIO, "failed to determine current working directory for worker", cwdErr)
			return StartTaskResult{}, err
		}
		workingDir = cwd
	}

	threadID, launchErr := launcher.Launch(launcher.Request{
		StoreRoot:  s.store.Root(),
		Title:      params.Title,
		Prompt:     params.Prompt,
		ConfigPath: configFile,
		WorkingDir: workingDir,
	})
	if launchErr != nil {
		if errors.Is(launchErr, launcher.ErrHandshakeTimeout) {
			err = wrapError(KindTimeout, "failed to launch worker process", launchErr)
		} else {
			err = wrapError(KindWorkerUnreachable, "failed to launch worker process", launchErr)
		}
		return StartTaskResult{}, err
	}

	logger.Service.Info("started task", "task", threadID, "title", params.Title)
	return StartTaskResult{ThreadID: threadID}, nil
}

// SendPrompt delivers an additional prompt to an existing task.
//
// Unlike the reference implementation this resumes (see DESIGN.md), a
// running task accepts a prompt by writing it to the task's open FIFO
// rather than respawning a worker process: the existing worker is already
// parked reading that pipe between invocations, so a second exec would
// race it for the prompt file and the PID file both.
func (s *Service) SendPrompt(ctx context.Context, params SendPromptParams) error {
	_, span := startSpan(ctx, "service.send_prompt", params.TaskID)
	var err error
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(params.Prompt) == "" {
		err = newError(KindValidation, "prompt must not be empty")
		return err
	}

	paths := s.store.Task(params.TaskID)
	metadata, readErr := paths.ReadMetadata()
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			if _, archived, findErr := s.findArchived(params.TaskID); findErr == nil && archived != nil {
				err = newError(KindInvalidState, fmt.Sprintf("task %s is ARCHIVED and cannot receive prompts", archived.ID))
				return err
			}
			err = newError(KindNotFound, fmt.Sprintf("task %s was not found", params.TaskID))
			return err
		}
		err = wrapError(KindIO, fmt.Sprintf("failed to load metadata for task %s", params.TaskID), readErr)
		return err
	}

	switch metadata.State {
	case taskstore.StateArchived:
		err = newError(KindInvalidState, fmt.Sprintf("task %s is ARCHIVED and cannot receive prompts", metadata.ID))
		return err
	case taskstore.StateDied:
		err = newError(KindInvalidState, fmt.Sprintf("task %s has DIED and cannot receive prompts", metadata.ID))
		return err
	}

	pid, pidErr := paths.ReadPID()
	if pidErr != nil {
		err = wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", metadata.ID), pidErr)
		return err
	}
	if pid != nil {
		alive, liveErr := taskstore.IsProcessRunning(*pid)
		if liveErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to probe worker liveness for task %s", metadata.ID), liveErr)
			return err
		}
		if !alive {
			_ = paths.RemovePID()
			err = newError(KindInvalidState, fmt.Sprintf("task %s has DIED and cannot receive prompts", metadata.ID))
			return err
		}
	}

	if writeErr := writePrompt(paths.PipePath(), params.Prompt); writeErr != nil {
		if isMissingPipeError(writeErr) {
			err = wrapError(KindWorkerUnreachable, fmt.Sprintf("prompt pipe for task %s is missing; the worker may have STOPPED, DIED, or been ARCHIVED", metadata.ID), writeErr)
			return err
		}
		err = wrapError(KindWorkerUnreachable, fmt.Sprintf("failed to deliver prompt to task %s", metadata.ID), writeErr)
		return err
	}

	logger.Service.Info("sent prompt", "task", metadata.ID)
	return nil
}

// writePrompt opens the task's FIFO for writing and appends one
// newline-terminated prompt line. The open is non-blocking, so a FIFO with
// no reader fails at once with ENXIO instead of waiting; the descriptor is
// then switched back to blocking mode for the write.
func writePrompt(pipePath, prompt string) error {
	fd, err := unix.Open(pipePath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open prompt pipe at %s: %w", pipePath, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return fmt.Errorf("configure prompt pipe at %s: %w", pipePath, err)
	}
	f := os.NewFile(uintptr(fd), pipePath)
	defer f.Close()
	if _, err := f.WriteString(prompt + "\n"); err != nil {
		return fmt.Errorf("write prompt to %s: %w", pipePath, err)
	}
	return nil
}

// isMissingPipeError reports whether err indicates there is no worker left
// to read the FIFO: the pipe file itself is gone (ENOENT, e.g. after
// shutdown removed it), there is no reader holding it open (ENXIO, the
// worker process exited without cleaning up), or a reader vanished mid-write
// (EPIPE).
func isMissingPipeError(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.EPIPE)
}

// resolveConfigFile validates an explicit --config-file path: it must
// exist, be a regular file, and be named config.toml (the name `codex
// exec` itself requires when pointed at CODEX_HOME).
func resolveConfigFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", wrapError(KindValidation, fmt.Sprintf("failed to resolve config file at %s", path), err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", wrapError(KindValidation, fmt.Sprintf("failed to resolve config file at %s", abs), err)
	}
	info, err := os.Stat(canonical)
	if err != nil || info.IsDir() {
		return "", newError(KindValidation, fmt.Sprintf("config file %s does not exist or is not a file", canonical))
	}
	if filepath.Base(canonical) != configFileName {
		return "", newError(KindValidation, fmt.Sprintf("custom config file must be named `%s` (got %s)", configFileName, filepath.Base(canonical)))
	}
	return canonical, nil
}

// prepareWorkingDirectory resolves --working-dir, optionally cloning --repo
// into it first, and returns its canonical absolute path (or "" when the
// caller supplied neither).
func prepareWorkingDirectory(ctx context.Context, workingDir, repoURL, repoRef string) (string, error) {
	_, span := startSpan(ctx, "service.prepare_working_directory", "")
	var err error
	defer func() { endSpan(span, err) }()

	var resolved string
	if workingDir != "" {
		abs, absErr := filepath.Abs(workingDir)
		if absErr != nil {
			err = wrapError(KindValidation, fmt.Sprintf("failed to resolve working directory %s", workingDir), absErr)
			return "", err
		}
		resolved = abs
	}

	if repoURL != "" {
		if resolved == "" {
			err = newError(KindValidation, "`--working-dir` is required when `--repo` is provided")
			return "", err
		}
		repoSpec := repoURL
		if _, statErr := os.Stat(repoURL); statErr == nil {
			if abs, absErr := filepath.Abs(repoURL); absErr == nil {
				repoSpec = abs
			}
		}
		if cloneErr := gitutil.Clone(repoSpec, repoRef, resolved); cloneErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to prepare working directory %s", resolved), cloneErr)
			return "", err
		}
	} else if resolved != "" {
		if _, statErr := os.Stat(resolved); os.IsNotExist(statErr) {
			if mkErr := os.MkdirAll(resolved, 0o755); mkErr != nil {
				err = wrapError(KindIO, fmt.Sprintf("failed to create working directory %s", resolved), mkErr)
				return "", err
			}
		}
	}

	if resolved == "" {
		return "", nil
	}
	canonical, evalErr := filepath.EvalSymlinks(resolved)
	if evalErr != nil {
		err = wrapError(KindIO, fmt.Sprintf("failed to resolve working directory %s", resolved), evalErr)
		return "", err
	}
	return canonical, nil
}
