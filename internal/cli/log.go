package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

func newLogCmd() *cobra.Command {
	var (
		lines   int
		follow  bool
		forever bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "log <task-id>",
		Short: "Print (and optionally follow) a task's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}

			shouldFollow := follow || forever
			descriptor, err := svc.PrepareLogDescriptor(context.Background(), taskID, shouldFollow)
			if err != nil {
				return fail(err)
			}

			f, err := os.Open(descriptor.Path)
			if err != nil {
				return fail(fmt.Errorf("open log for task %s at %s: %w", taskID, descriptor.Path, err))
			}
			defer f.Close()

			reader := bufio.NewReader(f)
			if err := printInitialLog(os.Stdout, reader, lines); err != nil {
				return fail(err)
			}
			_ = jsonOut // JSON and human rendering share the same line-oriented format for now.

			if shouldFollow && descriptor.Follow == service.LogFollowActive {
				return fail(followLog(svc, taskID, reader, forever))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "show only the last N lines (0 = all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the log until the task settles into a terminal state")
	cmd.Flags().BoolVarP(&forever, "forever", "F", false, "follow the log indefinitely, even past task completion")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "no-op placeholder: task.log already contains one JSON record per line")

	return cmd
}

func printInitialLog(w io.Writer, r *bufio.Reader, limit int) error {
	if limit <= 0 {
		_, err := io.Copy(w, r)
		return err
	}

	ring := make([]string, 0, limit)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if len(ring) == limit {
				ring = ring[1:]
			}
			ring = append(ring, line)
		}
		if err != nil {
			break
		}
	}
	for _, line := range ring {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// followLog watches the log file for further writes using fsnotify,
// mirroring the reference implementation's polling loop: after EOF it
// waits for the next write event, and once the task itself settles into a
// terminal state it gives the reader one more idle pass before exiting
// (so a final burst of buffered lines at shutdown is not missed).
func followLog(svc *service.Service, taskID string, r *bufio.Reader, forever bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()

	descriptor, err := svc.PrepareLogDescriptor(context.Background(), taskID, false)
	if err != nil {
		return err
	}
	if err := watcher.Add(descriptor.Path); err != nil {
		return fmt.Errorf("watch log file %s: %w", descriptor.Path, err)
	}

	idlePending := false
	for {
		drained := drainLines(os.Stdout, r)
		if drained {
			idlePending = false
		}

		if forever {
			waitForWriteOrTimeout(watcher, 250*time.Millisecond)
			continue
		}

		snapshot, err := svc.GetStatus(context.Background(), taskID)
		if err != nil {
			logger.CLI.Warn("failed to read state while following log", "task", taskID, "error", err)
			return nil
		}
		switch snapshot.Metadata.State {
		case taskstore.StateRunning:
			idlePending = false
		case taskstore.StateStopped:
			if idlePending {
				fmt.Fprintf(os.Stderr, "Task %s is STOPPED; stopping log follow.\n", taskID)
				return nil
			}
			idlePending = true
		case taskstore.StateDied, taskstore.StateArchived:
			fmt.Fprintf(os.Stderr, "Task %s is %s; stopping log follow.\n", taskID, snapshot.Metadata.State)
			return nil
		}

		waitForWriteOrTimeout(watcher, 250*time.Millisecond)
	}
}

func drainLines(w io.Writer, r *bufio.Reader) bool {
	any := false
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			io.WriteString(w, line)
			any = true
		}
		if err != nil {
			break
		}
	}
	return any
}

func waitForWriteOrTimeout(watcher *fsnotify.Watcher, timeout time.Duration) {
	select {
	case <-watcher.Events:
	case err := <-watcher.Errors:
		logger.CLI.Warn("log watcher error", "error", err)
	case <-time.After(timeout):
	}
}
