package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/taskstore"
)

const (
	shutdownTimeout      = 10 * time.Second
	shutdownPollInterval = 100 * time.Millisecond
)

// LogWaitTimeout bounds how long PrepareLogDescriptor waits for a log file
// to appear when the caller asked to wait for one. A var, not a const, so
// tests can shrink it rather than block for the production deadline.
var (
	LogWaitTimeout      = 10 * time.Second
	logWaitPollInterval = 100 * time.Millisecond
)

// PrepareLogDescriptor resolves the log path and follow metadata for a
// task, optionally waiting up to LogWaitTimeout for the log file to appear
// (useful right after StartTask, before the worker has written anything).
func (s *Service) PrepareLogDescriptor(ctx context.Context, taskID string, wait bool) (LogDescriptor, error) {
	_, span := startSpan(ctx, "service.prepare_log_descriptor", taskID)
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return LogDescriptor{}, err
	}

	activePath := s.store.Task(taskID).LogPath()
	var deadline time.Time
	if wait {
		deadline = time.Now().Add(LogWaitTimeout)
	}

	for {
		if _, statErr := os.Stat(activePath); statErr == nil {
			follow := s.resolveFollowMetadata(taskID)
			return LogDescriptor{TaskID: taskID, Path: activePath, Follow: follow.Follow, State: follow.State}, nil
		}

		if path, found, findErr := s.findArchivedLogPath(taskID); findErr != nil {
			err = findErr
			return LogDescriptor{}, err
		} else if found {
			return LogDescriptor{TaskID: taskID, Path: path, Follow: LogFollowArchived, State: taskstore.StateArchived}, nil
		}

		if wait && time.Now().Before(deadline) {
			time.Sleep(logWaitPollInterval)
			continue
		}

		if wait {
			err = newError(KindTimeout, fmt.Sprintf(
				"timed out after %s waiting for log file for task %s to appear", LogWaitTimeout, taskID))
			return LogDescriptor{}, err
		}
		err = newError(KindNotFound, fmt.Sprintf(
			"log file for task %s was not found under %s or %s", taskID, s.store.Root(), s.store.ArchiveRoot()))
		return LogDescriptor{}, err
	}
}

func (s *Service) resolveFollowMetadata(taskID string) LogDescriptor {
	metadataPath := s.store.Task(taskID).MetadataPath()
	if _, statErr := os.Stat(metadataPath); statErr == nil {
		return LogDescriptor{Follow: LogFollowActive}
	}
	if _, metadata, findErr := s.findArchived(taskID); findErr == nil && metadata != nil {
		return LogDescriptor{Follow: LogFollowArchived, State: metadata.State}
	}
	return LogDescriptor{Follow: LogFollowMissing}
}

func (s *Service) findArchivedLogPath(taskID string) (string, bool, error) {
	paths, _, err := s.findArchived(taskID)
	if err != nil {
		return "", false, wrapError(KindIO, fmt.Sprintf("failed to search archive for task %s", taskID), err)
	}
	if paths == nil {
		return "", false, nil
	}
	path := paths.LogPath()
	if _, statErr := os.Stat(path); statErr != nil {
		return "", false, nil
	}
	return path, true, nil
}

// StopTask stops a specific task if it is running.
func (s *Service) StopTask(ctx context.Context, taskID string) (StopOutcome, error) {
	_, span := startSpan(ctx, "service.stop_task", taskID)
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return "", err
	}
	outcome, stopErr := stopTaskPaths(s.store.Task(taskID))
	if stopErr != nil {
		err = stopErr
		return "", err
	}
	if outcome == StopOutcomeStopped {
		logger.Service.Info("stopped task", "task", taskID)
	}
	return outcome, nil
}

// StopAllRunning stops every active task whose worker is currently alive.
func (s *Service) StopAllRunning(ctx context.Context) ([]StopReport, error) {
	_, span := startSpan(ctx, "service.stop_all_running", "")
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return nil, err
	}

	active, activeErr := s.collectActive()
	if activeErr != nil {
		err = activeErr
		return nil, err
	}

	var running []string
	for _, task := range active {
		paths := s.store.Task(task.ID)
		pid, pidErr := paths.ReadPID()
		if pidErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", task.ID), pidErr)
			return nil, err
		}
		if pid == nil {
			continue
		}
		alive, liveErr := taskstore.IsProcessRunning(*pid)
		if liveErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to probe liveness for task %s", task.ID), liveErr)
			return nil, err
		}
		if alive {
			running = append(running, task.ID)
		}
	}

	reports := make([]StopReport, 0, len(running))
	for _, taskID := range running {
		outcome, stopErr := stopTaskPaths(s.store.Task(taskID))
		if stopErr != nil {
			err = stopErr
			return nil, err
		}
		reports = append(reports, StopReport{TaskID: taskID, Outcome: outcome})
	}
	logger.Service.Info("stopped all running tasks", "count", len(reports))
	return reports, nil
}

func stopTaskPaths(paths taskstore.Paths) (StopOutcome, error) {
	pid, pidErr := paths.ReadPID()
	if pidErr != nil {
		return "", wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", paths.ID()), pidErr)
	}
	if pid == nil {
		return StopOutcomeAlreadyStopped, nil
	}

	alive, liveErr := taskstore.IsProcessRunning(*pid)
	if liveErr != nil {
		return "", wrapError(KindIO, fmt.Sprintf("failed to probe liveness for task %s", paths.ID()), liveErr)
	}
	if !alive {
		_ = paths.RemovePID()
		return StopOutcomeAlreadyStopped, nil
	}

	if signalErr := sendSignal(*pid, unix.SIGTERM); signalErr != nil {
		return "", wrapError(KindIO, fmt.Sprintf("failed to signal worker for task %s", paths.ID()), signalErr)
	}
	if waitErr := waitForWorkerShutdown(*pid); waitErr != nil {
		if errors.Is(waitErr, errShutdownTimeout) {
			return "", wrapError(KindTimeout, fmt.Sprintf("failed to stop worker for task %s", paths.ID()), waitErr)
		}
		return "", wrapError(KindWorkerUnreachable, fmt.Sprintf("failed to stop worker for task %s", paths.ID()), waitErr)
	}

	_ = paths.RemovePID()
	if _, updateErr := paths.UpdateMetadata(func(m *taskstore.Metadata) {
		m.SetState(taskstore.StateStopped)
	}); updateErr != nil && !errors.Is(updateErr, os.ErrNotExist) {
		return "", wrapError(KindIO, fmt.Sprintf("failed to mark task %s stopped", paths.ID()), updateErr)
	}

	return StopOutcomeStopped, nil
}

// errShutdownTimeout marks the case where a worker is still alive even after
// SIGKILL and one further poll, distinguishing a genuine deadline from the
// IO errors waitForWorkerShutdown's liveness probes can also return.
var errShutdownTimeout = errors.New("worker did not stop before the shutdown deadline")

// waitForWorkerShutdown polls pid for liveness after SIGTERM, escalating to
// SIGKILL once shutdownTimeout elapses.
func waitForWorkerShutdown(pid int) error {
	deadline := time.Now().Add(shutdownTimeout)
	killed := false
	for {
		alive, err := taskstore.IsProcessRunning(pid)
		if err != nil {
			return err
		}
		if !alive {
			return nil
		}

		if !killed && time.Now().After(deadline) {
			if err := sendSignal(pid, unix.SIGKILL); err != nil {
				return err
			}
			killed = true
			time.Sleep(shutdownPollInterval)
			alive, err := taskstore.IsProcessRunning(pid)
			if err != nil {
				return err
			}
			if !alive {
				return nil
			}
			return fmt.Errorf("%w: pid %d", errShutdownTimeout, pid)
		}

		time.Sleep(shutdownPollInterval)
	}
}

func sendSignal(pid int, signal unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(pid, signal)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("signal process %d: %w", pid, err)
}
