package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/taskstore"
)

// ArchiveTask archives a task if it is stopped or died, or reports that it
// is already archived.
func (s *Service) ArchiveTask(ctx context.Context, taskID string) (ArchiveResult, error) {
	_, span := startSpan(ctx, "service.archive_task", taskID)
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return ArchiveResult{}, err
	}
	result, archiveErr := s.archiveTaskInner(taskID)
	if archiveErr != nil {
		err = archiveErr
		return ArchiveResult{}, err
	}
	if result.Outcome == ArchiveOutcomeArchived {
		logger.Service.Info("archived task", "task", taskID, "destination", result.Destination)
	}
	return result, nil
}

// ArchiveAll archives every stopped or died task, skipping tasks that are
// still running, and returns a summary of what happened.
func (s *Service) ArchiveAll(ctx context.Context) (ArchiveAllSummary, error) {
	_, span := startSpan(ctx, "service.archive_all", "")
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return ArchiveAllSummary{}, err
	}

	active, activeErr := s.collectActive()
	if activeErr != nil {
		err = activeErr
		return ArchiveAllSummary{}, err
	}

	var candidates []string
	summary := ArchiveAllSummary{}
	for _, task := range active {
		switch task.State {
		case taskstore.StateStopped, taskstore.StateDied:
			candidates = append(candidates, task.ID)
		case taskstore.StateRunning:
			summary.Skipped = append(summary.Skipped, SkippedTask{TaskID: task.ID, State: task.State})
		}
	}

	for _, taskID := range candidates {
		result, archiveErr := s.archiveTaskInner(taskID)
		if archiveErr != nil {
			summary.Failures = append(summary.Failures, TaskFailure{TaskID: taskID, Err: archiveErr})
			continue
		}
		switch result.Outcome {
		case ArchiveOutcomeArchived:
			summary.Archived = append(summary.Archived, result)
		case ArchiveOutcomeAlreadyArchived:
			summary.Already = append(summary.Already, result)
		}
	}

	logger.Service.Info("archived all eligible tasks",
		"archived", len(summary.Archived), "already", len(summary.Already),
		"skipped", len(summary.Skipped), "failures", len(summary.Failures))
	return summary, nil
}

func (s *Service) archiveTaskInner(taskID string) (ArchiveResult, error) {
	if _, archivedMetadata, findErr := s.findArchived(taskID); findErr != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to search archive for task %s", taskID), findErr)
	} else if archivedMetadata != nil {
		return ArchiveResult{TaskID: archivedMetadata.ID, Outcome: ArchiveOutcomeAlreadyArchived}, nil
	}

	paths := s.store.Task(taskID)
	metadata, readErr := paths.ReadMetadata()
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return ArchiveResult{}, newError(KindNotFound, fmt.Sprintf("task %s was not found", taskID))
		}
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to load metadata for task %s", taskID), readErr)
	}

	pid, pidErr := paths.ReadPID()
	if pidErr != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", taskID), pidErr)
	}
	derived, deriveErr := taskstore.DeriveState(metadata.State, pid)
	if deriveErr != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to derive state for task %s", taskID), deriveErr)
	}
	if derived != metadata.State {
		metadata.SetState(derived)
		if writeErr := paths.WriteMetadata(metadata); writeErr != nil {
			return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to persist derived state for task %s", taskID), writeErr)
		}
	}

	if derived == taskstore.StateRunning {
		return ArchiveResult{}, newError(KindInvalidState, fmt.Sprintf("task %s is RUNNING; stop it before archiving", metadata.ID))
	}
	if pid != nil {
		alive, liveErr := taskstore.IsProcessRunning(*pid)
		if liveErr != nil {
			return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to probe liveness for task %s", taskID), liveErr)
		}
		if alive {
			return ArchiveResult{}, newError(KindInvalidState, fmt.Sprintf("task %s is RUNNING; stop it before archiving", metadata.ID))
		}
	}

	_ = paths.RemovePID()
	_ = paths.RemovePipe()

	now := time.Now().UTC()
	metadata.State = taskstore.StateArchived
	metadata.UpdatedAt = now
	if err := paths.WriteMetadata(metadata); err != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to mark task %s archived", metadata.ID), err)
	}

	bucket, err := s.store.EnsureArchiveBucket(now)
	if err != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to create archive bucket for task %s", metadata.ID), err)
	}
	destination := filepath.Join(bucket, metadata.ID)
	if _, statErr := os.Stat(destination); statErr == nil {
		return ArchiveResult{}, newError(KindConflict, fmt.Sprintf("archive destination %s already exists for task %s", destination, metadata.ID))
	}

	if err := os.Rename(paths.Directory(), destination); err != nil {
		return ArchiveResult{}, wrapError(KindIO, fmt.Sprintf("failed to move task %s into archive at %s", metadata.ID, destination), err)
	}
	s.invalidateArchived(metadata.ID)

	return ArchiveResult{TaskID: metadata.ID, Outcome: ArchiveOutcomeArchived, Destination: destination}, nil
}
