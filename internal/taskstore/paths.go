package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Canonical filenames for task artifacts stored on disk.
const (
	MetadataFileName = "task.json"
	PIDFileName      = "task.pid"
	PipeFileName     = "task.pipe"
	LogFileName      = "task.log"
	ResultFileName   = "task.result"
)

// Paths is a helper for working with the files associated with one task.
type Paths struct {
	base   string
	taskID string
}

// PathsFor builds a Paths helper for an arbitrary directory, used when the
// caller already knows where a task's files live (e.g. a freshly created
// archive directory).
func PathsFor(directory, taskID string) Paths {
	return Paths{base: directory, taskID: taskID}
}

// ID returns the identifier associated with these paths.
func (p Paths) ID() string { return p.taskID }

// Directory returns the directory containing the task's files.
func (p Paths) Directory() string { return p.base }

func (p Paths) filePath(name string) string { return filepath.Join(p.base, name) }

// PIDPath returns the location of the worker PID file.
func (p Paths) PIDPath() string { return p.filePath(PIDFileName) }

// PipePath returns the location of the FIFO used for prompt/quit delivery.
func (p Paths) PipePath() string { return p.filePath(PipeFileName) }

// LogPath returns the location of the append-only transcript log.
func (p Paths) LogPath() string { return p.filePath(LogFileName) }

// ResultPath returns the location storing the most recent assistant result.
func (p Paths) ResultPath() string { return p.filePath(ResultFileName) }

// MetadataPath returns the location of the structured metadata file.
func (p Paths) MetadataPath() string { return p.filePath(MetadataFileName) }

// EnsureDirectory creates the directory holding the task's files.
func (p Paths) EnsureDirectory() error {
	if err := os.MkdirAll(p.Directory(), 0o755); err != nil {
		return fmt.Errorf("create task directory %s: %w", p.Directory(), err)
	}
	return nil
}

func (p Paths) ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare directory %s: %w", filepath.Dir(path), err)
	}
	return nil
}

// WriteMetadata atomically persists metadata: it is marshaled, written to a
// sibling temp file, fsynced, then renamed over the target so a reader
// never observes a partially written task.json.
func (p Paths) WriteMetadata(metadata Metadata) error {
	if metadata.ID != p.taskID {
		return fmt.Errorf("metadata id %s does not match path %s", metadata.ID, p.taskID)
	}
	path := p.MetadataPath()
	if err := p.ensureParent(path); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize metadata for task %s: %w", p.taskID, err)
	}
	return atomicWrite(path, payload, 0o600)
}

// UpdateMetadata reads the current metadata, applies mutate, persists the
// result, and returns the updated record.
func (p Paths) UpdateMetadata(mutate func(*Metadata)) (Metadata, error) {
	metadata, err := p.ReadMetadata()
	if err != nil {
		return Metadata{}, err
	}
	mutate(&metadata)
	if err := p.WriteMetadata(metadata); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// ReadMetadata loads structured metadata for the task from disk.
func (p Paths) ReadMetadata() (Metadata, error) {
	path := p.MetadataPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata for task %s: %w", p.taskID, err)
	}
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata for task %s: %w", p.taskID, err)
	}
	if metadata.ID != p.taskID {
		return Metadata{}, fmt.Errorf("metadata id %s does not match path %s", metadata.ID, p.taskID)
	}
	return metadata, nil
}

// WritePID writes the PID of the associated worker to disk.
func (p Paths) WritePID(pid int) error {
	path := p.PIDPath()
	if err := p.ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write pid for task %s: %w", p.taskID, err)
	}
	return nil
}

// ReadPID reads the PID of the associated worker. Returns nil if the PID
// file is missing.
func (p Paths) ReadPID() (*int, error) {
	raw, err := os.ReadFile(p.PIDPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pid for task %s: %w", p.taskID, err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pid for task %s: %w", p.taskID, err)
	}
	return &value, nil
}

// RemovePID removes the PID file, ignoring a missing file.
func (p Paths) RemovePID() error {
	if err := os.Remove(p.PIDPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file for task %s: %w", p.taskID, err)
	}
	return nil
}

// RemovePipe removes the pipe file, ignoring a missing file.
func (p Paths) RemovePipe() error {
	if err := os.Remove(p.PipePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pipe for task %s: %w", p.taskID, err)
	}
	return nil
}

// WriteLastResult writes the most recent assistant result for the task.
func (p Paths) WriteLastResult(contents string) error {
	path := p.ResultPath()
	if err := p.ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("write result for task %s: %w", p.taskID, err)
	}
	return nil
}

// ReadLastResult reads the most recent assistant result, if present.
func (p Paths) ReadLastResult() (string, bool, error) {
	raw, err := os.ReadFile(p.ResultPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read result for task %s: %w", p.taskID, err)
	}
	return string(raw), true, nil
}

// atomicWrite writes data to a sibling temp file (named with a random
// suffix so a crashed concurrent writer can never collide with this one),
// fsyncs it, then renames it over path.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist %s: %w", path, err)
	}
	return nil
}
