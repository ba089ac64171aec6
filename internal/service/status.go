package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"changkun.de/codextasks/internal/taskstore"
)

// GetStatus loads metadata and runtime information for the requested task,
// checking the archive when it is not found among active tasks.
func (s *Service) GetStatus(ctx context.Context, taskID string) (StatusSnapshot, error) {
	_, span := startSpan(ctx, "service.get_status", taskID)
	var err error
	defer func() { endSpan(span, err) }()

	paths := s.store.Task(taskID)
	metadata, readErr := paths.ReadMetadata()
	if readErr == nil {
		pid, pidErr := paths.ReadPID()
		if pidErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", taskID), pidErr)
			return StatusSnapshot{}, err
		}
		derived, deriveErr := taskstore.DeriveState(metadata.State, pid)
		if deriveErr != nil {
			err = wrapError(KindIO, fmt.Sprintf("failed to derive state for task %s", taskID), deriveErr)
			return StatusSnapshot{}, err
		}
		metadata.State = derived
		if metadata.LastResult == "" {
			if result, ok, resultErr := paths.ReadLastResult(); resultErr == nil && ok {
				metadata.LastResult = result
			}
		}
		return StatusSnapshot{Metadata: metadata, PID: pid}, nil
	}
	if !errors.Is(readErr, os.ErrNotExist) {
		err = wrapError(KindIO, fmt.Sprintf("failed to load metadata for task %s", taskID), readErr)
		return StatusSnapshot{}, err
	}

	archivedPaths, archivedMetadata, findErr := s.findArchived(taskID)
	if findErr != nil {
		err = wrapError(KindIO, fmt.Sprintf("failed to search archive for task %s", taskID), findErr)
		return StatusSnapshot{}, err
	}
	if archivedMetadata == nil {
		err = newError(KindNotFound, fmt.Sprintf("task %s was not found in the task store", taskID))
		return StatusSnapshot{}, err
	}
	metadata = *archivedMetadata
	metadata.State = taskstore.StateArchived
	if metadata.LastResult == "" {
		if result, ok, resultErr := archivedPaths.ReadLastResult(); resultErr == nil && ok {
			metadata.LastResult = result
		}
	}
	return StatusSnapshot{Metadata: metadata, PID: nil}, nil
}

// ListTasks lists tasks according to options, sorted by most recently
// updated first.
func (s *Service) ListTasks(ctx context.Context, opts ListOptions) ([]taskstore.Metadata, error) {
	_, span := startSpan(ctx, "service.list_tasks", "")
	var err error
	defer func() { endSpan(span, err) }()

	if err = s.store.EnsureLayout(); err != nil {
		err = wrapError(KindIO, "failed to initialize task store", err)
		return nil, err
	}

	var tasks []taskstore.Metadata
	active, activeErr := s.collectActive()
	if activeErr != nil {
		err = activeErr
		return nil, err
	}
	tasks = append(tasks, active...)

	if opts.IncludeArchived {
		archived, archivedErr := s.collectArchived()
		if archivedErr != nil {
			err = archivedErr
			return nil, err
		}
		tasks = append(tasks, archived...)
	}

	if len(opts.States) > 0 {
		wanted := make(map[taskstore.State]bool, len(opts.States))
		for _, st := range opts.States {
			wanted[st] = true
		}
		filtered := tasks[:0]
		for _, t := range tasks {
			if wanted[t.State] {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

func (s *Service) collectActive() ([]taskstore.Metadata, error) {
	root := s.store.Root()
	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil
		}
		return nil, wrapError(KindIO, fmt.Sprintf("failed to read task directory %s", root), readErr)
	}

	var tasks []taskstore.Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		paths := taskstore.PathsFor(filepath.Join(root, entry.Name()), entry.Name())
		metadata, readMetaErr := paths.ReadMetadata()
		if readMetaErr != nil {
			if errors.Is(readMetaErr, os.ErrNotExist) {
				continue
			}
			return nil, wrapError(KindIO, fmt.Sprintf("failed to read metadata for task %s", entry.Name()), readMetaErr)
		}

		pid, pidErr := paths.ReadPID()
		if pidErr != nil {
			return nil, wrapError(KindIO, fmt.Sprintf("failed to read pid for task %s", metadata.ID), pidErr)
		}
		derived, deriveErr := taskstore.DeriveState(metadata.State, pid)
		if deriveErr != nil {
			return nil, wrapError(KindIO, fmt.Sprintf("failed to derive state for task %s", metadata.ID), deriveErr)
		}
		metadata.State = derived
		if metadata.LastResult == "" {
			if result, ok, _ := paths.ReadLastResult(); ok {
				metadata.LastResult = result
			}
		}
		tasks = append(tasks, metadata)
	}
	return tasks, nil
}

func (s *Service) collectArchived() ([]taskstore.Metadata, error) {
	archiveRoot := s.store.ArchiveRoot()
	if _, statErr := os.Stat(archiveRoot); os.IsNotExist(statErr) {
		return nil, nil
	}

	var tasks []taskstore.Metadata
	queue := []string{archiveRoot}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		metadataPath := filepath.Join(dir, taskstore.MetadataFileName)
		if _, statErr := os.Stat(metadataPath); statErr == nil {
			paths := taskstore.PathsFor(dir, filepath.Base(dir))
			metadata, readErr := paths.ReadMetadata()
			if readErr != nil {
				return nil, wrapError(KindIO, fmt.Sprintf("failed to read archived metadata at %s", metadataPath), readErr)
			}
			tasks = append(tasks, metadata)
			continue
		}

		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return nil, wrapError(KindIO, fmt.Sprintf("failed to read archive directory %s", dir), readErr)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				queue = append(queue, filepath.Join(dir, entry.Name()))
			}
		}
	}
	return tasks, nil
}
