package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

const statusPollInterval = 300 * time.Millisecond

func newStatusCmd() *cobra.Command {
	var (
		jsonOut     bool
		all         bool
		allRunning  bool
		wait        bool
		waitAny     bool
		timeFormat  string
	)

	cmd := &cobra.Command{
		Use:   "status [task-id...]",
		Short: "Show the status of one or more tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}

			targets, err := resolveStatusTargets(svc, args, all, allRunning)
			if err != nil {
				return fail(err)
			}
			if len(targets) == 0 {
				return fail(fmt.Errorf("no tasks matched the requested selectors"))
			}

			snapshots, err := collectStatuses(svc, targets, wait, waitAny)
			if err != nil {
				return fail(err)
			}

			if jsonOut {
				return renderStatusJSON(snapshots)
			}
			renderStatusHuman(snapshots, timeFormat)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable JSON")
	cmd.Flags().BoolVar(&all, "all", false, "report on every task, active and archived")
	cmd.Flags().BoolVar(&allRunning, "all-running", false, "report on every currently running task")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until every selected task reaches a terminal state")
	cmd.Flags().BoolVar(&waitAny, "wait-any", false, "block until any selected task reaches a terminal state")
	cmd.Flags().StringVar(&timeFormat, "time-format", "unix", `timestamp style: "unix" or "iso"`)

	return cmd
}

func resolveStatusTargets(svc *service.Service, args []string, all, allRunning bool) ([]string, error) {
	ctx := context.Background()
	if all {
		tasks, err := svc.ListTasks(ctx, service.ListOptions{IncludeArchived: true})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		return ids, nil
	}
	if allRunning {
		tasks, err := svc.ListTasks(ctx, service.ListOptions{States: []taskstore.State{taskstore.StateRunning}})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		return ids, nil
	}

	seen := map[string]bool{}
	var targets []string
	for _, id := range args {
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	return targets, nil
}

// collectStatuses polls every target until the requested wait condition is
// satisfied: all terminal (wait), any terminal (waitAny), or immediately
// (neither flag set).
func collectStatuses(svc *service.Service, targets []string, wait, waitAny bool) ([]service.StatusSnapshot, error) {
	ctx := context.Background()
	for {
		snapshots := make([]service.StatusSnapshot, 0, len(targets))
		for _, id := range targets {
			snapshot, err := svc.GetStatus(ctx, id)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snapshot)
		}

		if !wait && !waitAny {
			return snapshots, nil
		}

		terminalCount := 0
		for _, s := range snapshots {
			if isTerminalState(s.Metadata.State) {
				terminalCount++
			}
		}
		if waitAny && terminalCount > 0 {
			return snapshots, nil
		}
		if wait && terminalCount == len(snapshots) {
			return snapshots, nil
		}

		time.Sleep(statusPollInterval)
	}
}

func isTerminalState(state taskstore.State) bool {
	return state != taskstore.StateRunning
}

func renderStatusHuman(snapshots []service.StatusSnapshot, timeFormat string) {
	for i, s := range snapshots {
		if i > 0 {
			fmt.Println()
		}
		m := s.Metadata
		fmt.Printf("Task ID: %s\n", m.ID)
		if m.Title != "" {
			fmt.Printf("Title: %s\n", m.Title)
		}
		fmt.Printf("State: %s\n", stateBadge(m.State))
		fmt.Printf("Created At: %s\n", formatTime(m.CreatedAt, timeFormat))
		fmt.Printf("Updated At: %s\n", formatTime(m.UpdatedAt, timeFormat))
		if m.WorkingDir != "" {
			fmt.Printf("Working Dir: %s\n", m.WorkingDir)
		}
		if m.LastResult != "" {
			fmt.Printf("Last Result: %s\n", m.LastResult)
		}
	}
}

func renderStatusJSON(snapshots []service.StatusSnapshot) error {
	type jsonRecord struct {
		ID            string `json:"id"`
		Title         string `json:"title,omitempty"`
		State         string `json:"state"`
		CreatedAt     string `json:"created_at"`
		UpdatedAt     string `json:"updated_at"`
		WorkingDir    string `json:"working_dir,omitempty"`
		ConfigPath    string `json:"config_path,omitempty"`
		InitialPrompt string `json:"initial_prompt,omitempty"`
		LastPrompt    string `json:"last_prompt,omitempty"`
		LastResult    string `json:"last_result,omitempty"`
		PID           *int   `json:"pid,omitempty"`
	}
	records := make([]jsonRecord, len(snapshots))
	for i, s := range snapshots {
		m := s.Metadata
		records[i] = jsonRecord{
			ID:            m.ID,
			Title:         m.Title,
			State:         string(m.State),
			CreatedAt:     m.CreatedAt.Format(time.RFC3339),
			UpdatedAt:     m.UpdatedAt.Format(time.RFC3339),
			WorkingDir:    m.WorkingDir,
			ConfigPath:    m.ConfigPath,
			InitialPrompt: m.InitialPrompt,
			LastPrompt:    m.LastPrompt,
			LastResult:    m.LastResult,
			PID:           s.PID,
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
