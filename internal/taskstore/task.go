// Package taskstore implements the on-disk layout backing codex-tasks: task
// metadata, PID/pipe lifecycle files, the log and last-result artifacts, and
// the archive hierarchy, plus the pure state-derivation rule that reconciles
// stored metadata with observed worker liveness.
package taskstore

import "time"

// State is one of the four lifecycle states a task can occupy.
type State string

const (
	StateRunning  State = "RUNNING"
	StateStopped  State = "STOPPED"
	StateDied     State = "DIED"
	StateArchived State = "ARCHIVED"
)

// String satisfies fmt.Stringer.
func (s State) String() string { return string(s) }

// Metadata is the record persisted to a task's task.json.
type Metadata struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	State         State     `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastResult    string    `json:"last_result,omitempty"`
	InitialPrompt string    `json:"initial_prompt,omitempty"`
	LastPrompt    string    `json:"last_prompt,omitempty"`
	ConfigPath    string    `json:"config_path,omitempty"`
	WorkingDir    string    `json:"working_dir,omitempty"`
}

// NewMetadata builds a new metadata record with created_at/updated_at set to
// now.
func NewMetadata(id, title string, state State) Metadata {
	now := time.Now().UTC()
	return Metadata{
		ID:        id,
		Title:     title,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes UpdatedAt to the current moment.
func (m *Metadata) Touch() {
	m.UpdatedAt = time.Now().UTC()
}

// SetState sets the task state and refreshes UpdatedAt.
func (m *Metadata) SetState(state State) {
	m.State = state
	m.Touch()
}
