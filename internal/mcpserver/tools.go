package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func toolsListResult() map[string]interface{} {
	return map[string]interface{}{"tools": tools}
}

var tools = []toolDescriptor{
	{
		Name:        "task.start",
		Description: "Start a new codex-tasks worker with an initial prompt.",
		InputSchema: objectSchema(map[string]string{
			"prompt":     "string",
			"title":      "string",
			"configFile": "string",
			"workingDir": "string",
			"repoUrl":    "string",
			"repoRef":    "string",
		}, []string{"prompt"}),
	},
	{
		Name:        "task.send",
		Description: "Send a follow-up prompt to an existing task.",
		InputSchema: objectSchema(map[string]string{
			"taskId": "string",
			"prompt": "string",
		}, []string{"taskId", "prompt"}),
	},
	{
		Name:        "task.status",
		Description: "Get the current status of a task.",
		InputSchema: objectSchema(map[string]string{
			"taskId": "string",
		}, []string{"taskId"}),
	},
	{
		Name:        "task.list",
		Description: "List tasks, optionally including archived ones or filtering by state.",
		InputSchema: objectSchema(map[string]string{
			"includeArchived": "boolean",
			"states":          "array",
		}, nil),
	},
	{
		Name:        "task.log",
		Description: "Resolve the log file path for a task.",
		InputSchema: objectSchema(map[string]string{
			"taskId": "string",
			"wait":   "boolean",
		}, []string{"taskId"}),
	},
	{
		Name:        "task.stop",
		Description: "Stop a running task, or all running tasks when all is true.",
		InputSchema: objectSchema(map[string]string{
			"taskId": "string",
			"all":    "boolean",
		}, nil),
	},
	{
		Name:        "task.archive",
		Description: "Archive a stopped or died task, or all eligible tasks when all is true.",
		InputSchema: objectSchema(map[string]string{
			"taskId": "string",
			"all":    "boolean",
		}, nil),
	},
}

func objectSchema(properties map[string]string, required []string) map[string]interface{} {
	props := make(map[string]interface{}, len(properties))
	for name, typ := range properties {
		props[name] = map[string]string{"type": typ}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(req request, w *bufio.Writer) error {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writeError(w, req.ID, errCodeInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
		}
	}

	content, structured, isErr := s.dispatchTool(context.Background(), params.Name, params.Arguments)
	result := map[string]interface{}{
		"content": []map[string]string{
			{"type": "text", "text": content},
		},
		"structured_content": structured,
		"is_error":           isErr,
	}
	return writeResult(w, req.ID, result)
}

// dispatchTool invokes the named tool and renders its outcome as a
// human-readable string plus a structured payload. Refusals (validation
// failures, invalid state transitions, not-found tasks) come back as
// is_error results rather than JSON-RPC errors, so the assistant can
// recover without the call itself failing.
func (s *Server) dispatchTool(ctx context.Context, name string, rawArgs json.RawMessage) (text string, structured interface{}, isError bool) {
	switch name {
	case "task.start":
		return s.toolStart(ctx, rawArgs)
	case "task.send":
		return s.toolSend(ctx, rawArgs)
	case "task.status":
		return s.toolStatus(ctx, rawArgs)
	case "task.list":
		return s.toolList(ctx, rawArgs)
	case "task.log":
		return s.toolLog(ctx, rawArgs)
	case "task.stop":
		return s.toolStop(ctx, rawArgs)
	case "task.archive":
		return s.toolArchive(ctx, rawArgs)
	default:
		return fmt.Sprintf("unknown tool %q", name), nil, true
	}
}

func unmarshalArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errResult(err error) (string, interface{}, bool) {
	return err.Error(), nil, true
}

func (s *Server) toolStart(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		Prompt     string `json:"prompt"`
		Title      string `json:"title"`
		ConfigFile string `json:"configFile"`
		WorkingDir string `json:"workingDir"`
		RepoURL    string `json:"repoUrl"`
		RepoRef    string `json:"repoRef"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	result, err := s.svc.StartTask(ctx, service.StartTaskParams{
		Title:      args.Title,
		Prompt:     args.Prompt,
		ConfigFile: args.ConfigFile,
		WorkingDir: args.WorkingDir,
		RepoURL:    args.RepoURL,
		RepoRef:    args.RepoRef,
	})
	if err != nil {
		return errResult(err)
	}
	return fmt.Sprintf("Task %s started.", result.ThreadID), result, false
}

func (s *Server) toolSend(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		TaskID string `json:"taskId"`
		Prompt string `json:"prompt"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	if err := s.svc.SendPrompt(ctx, service.SendPromptParams{TaskID: args.TaskID, Prompt: args.Prompt}); err != nil {
		return errResult(err)
	}
	return fmt.Sprintf("Prompt sent to task %s.", args.TaskID), map[string]string{"taskId": args.TaskID}, false
}

func (s *Server) toolStatus(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		TaskID string `json:"taskId"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	snapshot, err := s.svc.GetStatus(ctx, args.TaskID)
	if err != nil {
		return errResult(err)
	}
	return fmt.Sprintf("Task %s is %s.", snapshot.Metadata.ID, snapshot.Metadata.State), metadataViewWithPID(snapshot.Metadata, snapshot.PID), false
}

func (s *Server) toolList(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		IncludeArchived bool     `json:"includeArchived"`
		States          []string `json:"states"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	states := make([]taskstore.State, 0, len(args.States))
	for _, st := range args.States {
		states = append(states, taskstore.State(st))
	}
	tasks, err := s.svc.ListTasks(ctx, service.ListOptions{IncludeArchived: args.IncludeArchived, States: states})
	if err != nil {
		return errResult(err)
	}
	views := make([]metadataJSON, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, metadataView(t))
	}
	return fmt.Sprintf("%d task(s).", len(tasks)), map[string]interface{}{"tasks": views}, false
}

func (s *Server) toolLog(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		TaskID string `json:"taskId"`
		Wait   bool   `json:"wait"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	descriptor, err := s.svc.PrepareLogDescriptor(ctx, args.TaskID, args.Wait)
	if err != nil {
		return errResult(err)
	}
	return descriptor.Path, map[string]string{"taskId": descriptor.TaskID, "path": descriptor.Path, "follow": string(descriptor.Follow)}, false
}

func (s *Server) toolStop(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		TaskID string `json:"taskId"`
		All    bool   `json:"all"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	if args.All {
		reports, err := s.svc.StopAllRunning(ctx)
		if err != nil {
			return errResult(err)
		}
		stopped := 0
		for _, r := range reports {
			if r.Outcome == service.StopOutcomeStopped {
				stopped++
			}
		}
		return fmt.Sprintf("Stopped %d running task(s).", stopped), reports, false
	}
	if args.TaskID == "" {
		return "taskId is required unless all=true", nil, true
	}
	outcome, err := s.svc.StopTask(ctx, args.TaskID)
	if err != nil {
		return errResult(err)
	}
	if outcome == service.StopOutcomeAlreadyStopped {
		return fmt.Sprintf("Task %s is not running; nothing to stop.", args.TaskID), map[string]string{"taskId": args.TaskID, "outcome": string(outcome)}, false
	}
	return fmt.Sprintf("Task %s stopped.", args.TaskID), map[string]string{"taskId": args.TaskID, "outcome": string(outcome)}, false
}

func (s *Server) toolArchive(ctx context.Context, raw json.RawMessage) (string, interface{}, bool) {
	var args struct {
		TaskID string `json:"taskId"`
		All    bool   `json:"all"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return errResult(err)
	}
	if args.All {
		summary, err := s.svc.ArchiveAll(ctx)
		if err != nil {
			return errResult(err)
		}
		if len(summary.Archived) == 0 && len(summary.Already) == 0 {
			return "No STOPPED or DIED tasks were found to archive.", summary, false
		}
		return fmt.Sprintf("Archived %d task(s); %d already archived; %d skipped (running); %d failed.",
			len(summary.Archived), len(summary.Already), len(summary.Skipped), len(summary.Failures)), summary, false
	}
	if args.TaskID == "" {
		return "taskId is required unless all=true", nil, true
	}
	result, err := s.svc.ArchiveTask(ctx, args.TaskID)
	if err != nil {
		return errResult(err)
	}
	if result.Outcome == service.ArchiveOutcomeAlreadyArchived {
		return fmt.Sprintf("Task %s is already archived.", args.TaskID), result, false
	}
	return fmt.Sprintf("Task %s archived to %s.", result.TaskID, result.Destination), result, false
}

// metadataJSON is the camelCased wire shape of taskstore.Metadata used in
// structured tool results. PID is included when known, per the same
// record task.status prints in the CLI.
type metadataJSON struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	State         string `json:"state"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
	ConfigPath    string `json:"configPath,omitempty"`
	LastResult    string `json:"lastResult,omitempty"`
	InitialPrompt string `json:"initialPrompt,omitempty"`
	LastPrompt    string `json:"lastPrompt,omitempty"`
	PID           *int   `json:"pid,omitempty"`
}

func metadataView(m taskstore.Metadata) metadataJSON {
	return metadataViewWithPID(m, nil)
}

func metadataViewWithPID(m taskstore.Metadata, pid *int) metadataJSON {
	return metadataJSON{
		ID:            m.ID,
		Title:         m.Title,
		State:         string(m.State),
		CreatedAt:     m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:     m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ConfigPath:    m.ConfigPath,
		LastResult:    m.LastResult,
		InitialPrompt: m.InitialPrompt,
		LastPrompt:    m.LastPrompt,
		PID:           pid,
	}
}
