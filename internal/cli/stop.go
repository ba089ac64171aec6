package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/service"
)

func newStopCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stop [task-id]",
		Short: "Stop a running task, or every running task with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}
			ctx := context.Background()

			if all {
				reports, err := svc.StopAllRunning(ctx)
				if err != nil {
					return fail(err)
				}
				stopped, already := 0, 0
				for _, r := range reports {
					if r.Outcome == service.StopOutcomeStopped {
						stopped++
						fmt.Printf("Task %s stopped.\n", r.TaskID)
					} else {
						already++
					}
				}
				fmt.Printf("Stopped %d running task(s); %d already stopped.\n", stopped, already)
				return nil
			}

			if len(args) != 1 {
				return fail(fmt.Errorf("a task id is required unless --all is given"))
			}
			outcome, err := svc.StopTask(ctx, args[0])
			if err != nil {
				return fail(err)
			}
			if outcome == service.StopOutcomeAlreadyStopped {
				fmt.Printf("Task %s is not running; nothing to stop.\n", args[0])
				return nil
			}
			fmt.Printf("Task %s stopped.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "stop every currently running task")
	return cmd
}
