package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"changkun.de/codextasks/internal/taskstore"
)

func TestShouldExitAfterStart(t *testing.T) {
	if ShouldExitAfterStart() {
		t.Fatalf("expected false when env var is unset")
	}
	t.Setenv(ExitAfterStartEnvVar, "1")
	if !ShouldExitAfterStart() {
		t.Fatalf("expected true when env var is set")
	}
}

func TestRunExitAfterStartPerformsStoreLayoutSideEffects(t *testing.T) {
	t.Setenv(ExitAfterStartEnvVar, "1")

	storeRoot := filepath.Join(t.TempDir(), "store")
	cfg, err := NewConfig(storeRoot, "a title", "do the thing", "", "")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if err := Run(cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	store := taskstore.New(storeRoot)
	entries, err := os.ReadDir(storeRoot)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var taskID string
	for _, e := range entries {
		if e.IsDir() {
			taskID = e.Name()
		}
	}
	if taskID == "" {
		t.Fatalf("expected a task directory to be created under %s", storeRoot)
	}

	paths := store.Task(taskID)
	metadata, err := paths.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if metadata.State != taskstore.StateRunning {
		t.Errorf("State = %v, want RUNNING", metadata.State)
	}
	if metadata.Title != "a title" {
		t.Errorf("Title = %q", metadata.Title)
	}
	if metadata.InitialPrompt != "do the thing" {
		t.Errorf("InitialPrompt = %q", metadata.InitialPrompt)
	}

	pid, err := paths.ReadPID()
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid == nil || *pid != os.Getpid() {
		t.Errorf("pid = %v, want %d", pid, os.Getpid())
	}

	if _, err := os.Stat(paths.PipePath()); !os.IsNotExist(err) {
		t.Errorf("expected no FIFO to be created, stat err = %v", err)
	}
}

func TestTryExtractThreadID(t *testing.T) {
	cases := []struct {
		line   string
		wantID string
		wantOK bool
	}{
		{`{"type":"thread.started","thread_id":"abc-123"}`, "abc-123", true},
		{`{"type":"item.completed","thread_id":"abc-123"}`, "", false},
		{`not json`, "", false},
		{`{"type":"thread.started"}`, "", false},
	}
	for _, tc := range cases {
		id, ok := tryExtractThreadID(tc.line)
		if ok != tc.wantOK || id != tc.wantID {
			t.Errorf("tryExtractThreadID(%q) = (%q, %v), want (%q, %v)", tc.line, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestNewConfigRequiresPrompt(t *testing.T) {
	if _, err := NewConfig(t.TempDir(), "", "", "", ""); err == nil {
		t.Fatalf("expected error for missing prompt")
	}
}

func TestNewConfigFallsBackToEnv(t *testing.T) {
	t.Setenv(PromptEnvVar, "do the thing")
	t.Setenv(TitleEnvVar, "a title")
	cfg, err := NewConfig(t.TempDir(), "", "", "", "")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.InitialPrompt != "do the thing" {
		t.Errorf("InitialPrompt = %q", cfg.InitialPrompt)
	}
	if cfg.Title != "a title" {
		t.Errorf("Title = %q", cfg.Title)
	}
}

func TestPromptReaderReopensAfterWriterCloses(t *testing.T) {
	dir := t.TempDir()
	pipePath := filepath.Join(dir, "task.pipe")
	if err := createPipe(pipePath); err != nil {
		t.Fatalf("createPipe: %v", err)
	}

	reader, err := newPromptReader(pipePath)
	if err != nil {
		t.Fatalf("newPromptReader: %v", err)
	}
	defer reader.close()

	results := make(chan string, 2)
	errs := make(chan error, 2)
	go func() {
		for i := 0; i < 2; i++ {
			line, ok, err := reader.nextPrompt()
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- nil
				return
			}
			results <- line
		}
	}()

	writeLine := func(s string) {
		w, err := os.OpenFile(pipePath, os.O_WRONLY, 0)
		if err != nil {
			t.Fatalf("open pipe for write: %v", err)
		}
		if _, err := w.WriteString(s + "\n"); err != nil {
			t.Fatalf("write pipe: %v", err)
		}
		w.Close()
	}

	writeLine("first prompt")
	select {
	case got := <-results:
		if got != "first prompt" {
			t.Fatalf("got %q, want %q", got, "first prompt")
		}
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for first prompt")
	}

	writeLine("second prompt")
	select {
	case got := <-results:
		if got != "second prompt" {
			t.Fatalf("got %q, want %q", got, "second prompt")
		}
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for second prompt after reopen")
	}
}
