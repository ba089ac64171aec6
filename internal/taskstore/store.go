package taskstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const archiveDirName = "archive"

// Store is a rooted view into the filesystem layout backing codex tasks.
type Store struct {
	root string
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// Default returns a store rooted at $HOME/.codex/tasks, honoring CODEX_HOME
// when set (the assistant's own home override takes precedence so the CLI
// and the assistant always agree on where tasks live).
func Default() (*Store, error) {
	if codexHome := os.Getenv("CODEX_HOME"); codexHome != "" {
		return New(filepath.Join(codexHome, "tasks")), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locate home directory: %w", err)
	}
	return New(filepath.Join(home, ".codex", "tasks")), nil
}

// Root returns the directory holding active tasks.
func (s *Store) Root() string { return s.root }

// ArchiveRoot returns the directory holding archived tasks.
func (s *Store) ArchiveRoot() string { return filepath.Join(s.root, archiveDirName) }

// EnsureLayout creates the store's primary directories.
func (s *Store) EnsureLayout() error {
	if err := os.MkdirAll(s.Root(), 0o755); err != nil {
		return fmt.Errorf("create task root at %s: %w", s.Root(), err)
	}
	if err := os.MkdirAll(s.ArchiveRoot(), 0o755); err != nil {
		return fmt.Errorf("create archive root at %s: %w", s.ArchiveRoot(), err)
	}
	return nil
}

func (s *Store) archiveBucket(timestamp time.Time) string {
	ts := timestamp.UTC()
	return filepath.Join(s.ArchiveRoot(),
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()))
}

// EnsureArchiveBucket creates the YYYY/MM/DD bucket for timestamp and
// returns its path.
func (s *Store) EnsureArchiveBucket(timestamp time.Time) (string, error) {
	bucket := s.archiveBucket(timestamp)
	if err := os.MkdirAll(bucket, 0o755); err != nil {
		return "", fmt.Errorf("create archive bucket at %s: %w", bucket, err)
	}
	return bucket, nil
}

// EnsureArchiveTaskDir creates and returns the archive directory for a
// specific task within the bucket for timestamp.
func (s *Store) EnsureArchiveTaskDir(timestamp time.Time, taskID string) (string, error) {
	dir := filepath.Join(s.archiveBucket(timestamp), taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory for task %s: %w", taskID, err)
	}
	return dir, nil
}

// Task returns helpers for interacting with an active task's files.
func (s *Store) Task(taskID string) Paths {
	return Paths{base: filepath.Join(s.root, taskID), taskID: taskID}
}

// ArchivedTask returns helpers for interacting with an archived task's
// files, bucketed under timestamp.
func (s *Store) ArchivedTask(timestamp time.Time, taskID string) Paths {
	return Paths{base: filepath.Join(s.archiveBucket(timestamp), taskID), taskID: taskID}
}

// SaveMetadata writes metadata to disk using the standard active-task
// layout.
func (s *Store) SaveMetadata(metadata Metadata) error {
	return s.Task(metadata.ID).WriteMetadata(metadata)
}

// LoadMetadata loads metadata for taskID from the active layout.
func (s *Store) LoadMetadata(taskID string) (Metadata, error) {
	return s.Task(taskID).ReadMetadata()
}

// FindArchived attempts to locate an archived task by id via a bounded
// breadth-first walk of the archive tree, returning its paths and metadata.
// A nil, nil result means the task was not found in the archive.
func (s *Store) FindArchived(taskID string) (*Paths, *Metadata, error) {
	archiveRoot := s.ArchiveRoot()
	if _, err := os.Stat(archiveRoot); os.IsNotExist(err) {
		return nil, nil, nil
	}

	queue := []string{archiveRoot}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		if filepath.Base(dir) == taskID {
			paths := Paths{base: dir, taskID: taskID}
			metadata, err := paths.ReadMetadata()
			if err != nil {
				return nil, nil, err
			}
			return &paths, &metadata, nil
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("read archive directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				queue = append(queue, filepath.Join(dir, entry.Name()))
			}
		}
	}

	return nil, nil, nil
}
