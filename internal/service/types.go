package service

import "changkun.de/codextasks/internal/taskstore"

// StartTaskParams are the inputs required to launch a new task worker.
type StartTaskParams struct {
	Title      string
	Prompt     string
	ConfigFile string
	WorkingDir string
	RepoURL    string
	RepoRef    string
}

// StartTaskResult is returned once a worker has completed its handshake.
type StartTaskResult struct {
	ThreadID string
}

// SendPromptParams identify the task to resume and the prompt to deliver.
type SendPromptParams struct {
	TaskID string
	Prompt string
}

// StatusSnapshot is a task's metadata together with its derived state and
// the PID recorded in task.pid, if any (present even when that process is
// no longer alive).
type StatusSnapshot struct {
	Metadata taskstore.Metadata
	PID      *int
}

// ListOptions controls which tasks ListTasks returns.
type ListOptions struct {
	IncludeArchived bool
	States          []taskstore.State
}

// StopOutcome reports what StopTask actually did.
type StopOutcome string

const (
	StopOutcomeAlreadyStopped StopOutcome = "already_stopped"
	StopOutcomeStopped        StopOutcome = "stopped"
)

// StopReport pairs a task id with the outcome of stopping it, used by
// StopAllRunning.
type StopReport struct {
	TaskID  string
	Outcome StopOutcome
}

// ArchiveOutcome reports what ArchiveTask actually did.
type ArchiveOutcome string

const (
	ArchiveOutcomeArchived        ArchiveOutcome = "archived"
	ArchiveOutcomeAlreadyArchived ArchiveOutcome = "already_archived"
)

// ArchiveResult is the result of archiving a single task.
type ArchiveResult struct {
	TaskID      string
	Outcome     ArchiveOutcome
	Destination string // set only when Outcome == ArchiveOutcomeArchived
}

// SkippedTask records a task ArchiveAll declined to touch because it was
// still running.
type SkippedTask struct {
	TaskID string
	State  taskstore.State
}

// ArchiveAllSummary reports the outcome of archiving every eligible task.
type ArchiveAllSummary struct {
	Skipped  []SkippedTask
	Archived []ArchiveResult
	Already  []ArchiveResult
	Failures []TaskFailure
}

// TaskFailure pairs a task id with the error encountered acting on it.
type TaskFailure struct {
	TaskID string
	Err    error
}

// LogFollowKind tells a caller how to watch a log file for further writes.
type LogFollowKind string

const (
	LogFollowActive   LogFollowKind = "active"   // task is in the active root; further writes may follow
	LogFollowArchived LogFollowKind = "archived" // task is archived; no further writes expected
	LogFollowMissing  LogFollowKind = "missing"  // task could not be located at all
)

// LogDescriptor resolves where a task's log lives and whether a follower
// should expect further writes.
type LogDescriptor struct {
	TaskID string
	Path   string
	Follow LogFollowKind
	State  taskstore.State // meaningful when Follow == LogFollowArchived
}
