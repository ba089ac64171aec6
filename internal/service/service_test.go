package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"changkun.de/codextasks/internal/taskstore"
)

func newTestService(t *testing.T) (*Service, *taskstore.Store) {
	t.Helper()
	store := taskstore.New(filepath.Join(t.TempDir(), "store"))
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return New(store), store
}

func TestStopTaskAlreadyStoppedWhenPIDMissing(t *testing.T) {
	svc, store := newTestService(t)
	paths := store.Task("task-1")
	if err := paths.EnsureDirectory(); err != nil {
		t.Fatalf("EnsureDirectory: %v", err)
	}

	outcome, err := svc.StopTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("StopTask: %v", err)
	}
	if outcome != StopOutcomeAlreadyStopped {
		t.Fatalf("outcome = %v, want %v", outcome, StopOutcomeAlreadyStopped)
	}
}

func TestStopTaskRemovesStalePID(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-2", "", taskstore.StateRunning)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	paths := store.Task("task-2")
	// A PID that is guaranteed not to be running: reap a child immediately.
	cmd := spawnAndReap(t)
	if err := paths.WritePID(cmd); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	outcome, err := svc.StopTask(context.Background(), "task-2")
	if err != nil {
		t.Fatalf("StopTask: %v", err)
	}
	if outcome != StopOutcomeAlreadyStopped {
		t.Fatalf("outcome = %v, want %v", outcome, StopOutcomeAlreadyStopped)
	}
	if pid, err := paths.ReadPID(); err != nil || pid != nil {
		t.Fatalf("expected pid file removed, got %v, err %v", pid, err)
	}
}

func TestSendPromptRejectsArchivedTask(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-3", "", taskstore.StateStopped)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	result, err := svc.ArchiveTask(context.Background(), "task-3")
	if err != nil {
		t.Fatalf("ArchiveTask: %v", err)
	}
	if result.Outcome != ArchiveOutcomeArchived {
		t.Fatalf("outcome = %v, want archived", result.Outcome)
	}

	err = svc.SendPrompt(context.Background(), SendPromptParams{TaskID: "task-3", Prompt: "hello"})
	if err == nil {
		t.Fatalf("expected error sending prompt to archived task")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindInvalidState {
		t.Fatalf("err = %v, want KindInvalidState", err)
	}
}

func TestSendPromptRejectsDiedTask(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-4", "", taskstore.StateDied)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	err := svc.SendPrompt(context.Background(), SendPromptParams{TaskID: "task-4", Prompt: "hello"})
	if err == nil {
		t.Fatalf("expected error sending prompt to died task")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindInvalidState {
		t.Fatalf("err = %v, want KindInvalidState", err)
	}
}

func TestSendPromptRejectsEmptyPrompt(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.SendPrompt(context.Background(), SendPromptParams{TaskID: "task-5", Prompt: "   "})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindValidation {
		t.Fatalf("err = %v, want KindValidation", err)
	}
}

func TestSendPromptRejectsMissingPipeWithExactMessage(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-pipeless", "", taskstore.StateRunning)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	paths := store.Task("task-pipeless")
	// A live pid (this test process itself) but no FIFO on disk: writePrompt
	// must fail with ENOENT, not a generic worker-unreachable message.
	if err := paths.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	err := svc.SendPrompt(context.Background(), SendPromptParams{TaskID: "task-pipeless", Prompt: "hello"})
	if err == nil {
		t.Fatalf("expected error sending prompt to a task with no pipe")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindWorkerUnreachable {
		t.Fatalf("err = %v, want KindWorkerUnreachable", err)
	}
	want := "prompt pipe for task task-pipeless is missing; the worker may have STOPPED, DIED, or been ARCHIVED"
	if svcErr.Msg != want {
		t.Fatalf("Msg = %q, want %q", svcErr.Msg, want)
	}
}

func TestPrepareLogDescriptorTimesOutWhenWaiting(t *testing.T) {
	svc, _ := newTestService(t)

	original := LogWaitTimeout
	LogWaitTimeout = 50 * time.Millisecond
	t.Cleanup(func() { LogWaitTimeout = original })

	start := time.Now()
	_, err := svc.PrepareLogDescriptor(context.Background(), "nonexistent", true)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed < LogWaitTimeout {
		t.Fatalf("returned before the wait deadline elapsed: %s", elapsed)
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindTimeout {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
}

func TestPrepareLogDescriptorNotFoundWithoutWaiting(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.PrepareLogDescriptor(context.Background(), "nonexistent", false)
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindNotFound {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestArchiveTaskRejectsRunningTask(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-6", "", taskstore.StateRunning)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	paths := store.Task("task-6")
	if err := paths.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	_, err := svc.ArchiveTask(context.Background(), "task-6")
	if err == nil {
		t.Fatalf("expected error archiving a running task")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindInvalidState {
		t.Fatalf("err = %v, want KindInvalidState", err)
	}
}

func TestArchiveTaskIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-7", "", taskstore.StateStopped)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	first, err := svc.ArchiveTask(context.Background(), "task-7")
	if err != nil {
		t.Fatalf("ArchiveTask (first): %v", err)
	}
	if first.Outcome != ArchiveOutcomeArchived {
		t.Fatalf("outcome = %v, want archived", first.Outcome)
	}

	second, err := svc.ArchiveTask(context.Background(), "task-7")
	if err != nil {
		t.Fatalf("ArchiveTask (second): %v", err)
	}
	if second.Outcome != ArchiveOutcomeAlreadyArchived {
		t.Fatalf("outcome = %v, want already_archived", second.Outcome)
	}
}

func TestListTasksOrdersByMostRecentlyUpdated(t *testing.T) {
	svc, store := newTestService(t)

	older := taskstore.NewMetadata("task-older", "", taskstore.StateStopped)
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := taskstore.NewMetadata("task-newer", "", taskstore.StateStopped)

	if err := store.SaveMetadata(older); err != nil {
		t.Fatalf("SaveMetadata older: %v", err)
	}
	if err := store.SaveMetadata(newer); err != nil {
		t.Fatalf("SaveMetadata newer: %v", err)
	}

	tasks, err := svc.ListTasks(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "task-newer" || tasks[1].ID != "task-older" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
}

func TestListTasksFiltersByState(t *testing.T) {
	svc, store := newTestService(t)
	running := taskstore.NewMetadata("task-running", "", taskstore.StateRunning)
	stopped := taskstore.NewMetadata("task-stopped", "", taskstore.StateStopped)
	if err := store.SaveMetadata(running); err != nil {
		t.Fatalf("SaveMetadata running: %v", err)
	}
	if err := store.SaveMetadata(stopped); err != nil {
		t.Fatalf("SaveMetadata stopped: %v", err)
	}
	// Running metadata with no pid on disk derives to DIED, not RUNNING.
	paths := store.Task("task-running")
	if err := paths.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	tasks, err := svc.ListTasks(context.Background(), ListOptions{States: []taskstore.State{taskstore.StateRunning}})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-running" {
		t.Fatalf("unexpected filtered tasks: %+v", tasks)
	}
}

func TestGetStatusFindsArchivedTask(t *testing.T) {
	svc, store := newTestService(t)
	metadata := taskstore.NewMetadata("task-8", "", taskstore.StateStopped)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	if _, err := svc.ArchiveTask(context.Background(), "task-8"); err != nil {
		t.Fatalf("ArchiveTask: %v", err)
	}

	snapshot, err := svc.GetStatus(context.Background(), "task-8")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snapshot.Metadata.State != taskstore.StateArchived {
		t.Fatalf("state = %v, want ARCHIVED", snapshot.Metadata.State)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetStatus(context.Background(), "nope")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Kind != KindNotFound {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestArchiveCacheServesRepeatLookups(t *testing.T) {
	store := taskstore.New(filepath.Join(t.TempDir(), "store"))
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	svc := New(store, WithArchiveCache())

	metadata := taskstore.NewMetadata("task-9", "", taskstore.StateStopped)
	if err := store.SaveMetadata(metadata); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	if _, err := svc.ArchiveTask(context.Background(), "task-9"); err != nil {
		t.Fatalf("ArchiveTask: %v", err)
	}

	for i := 0; i < 2; i++ {
		snapshot, err := svc.GetStatus(context.Background(), "task-9")
		if err != nil {
			t.Fatalf("GetStatus iteration %d: %v", i, err)
		}
		if snapshot.Metadata.State != taskstore.StateArchived {
			t.Fatalf("state = %v, want ARCHIVED", snapshot.Metadata.State)
		}
	}
}
