package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/service"
)

func newArchiveCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "archive [task-id]",
		Short: "Archive a stopped or died task, or every eligible task with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}
			ctx := context.Background()

			if all {
				summary, err := svc.ArchiveAll(ctx)
				if err != nil {
					return fail(err)
				}
				for _, a := range summary.Archived {
					fmt.Printf("Task %s archived to %s.\n", a.TaskID, a.Destination)
				}
				for _, f := range summary.Failures {
					fmt.Printf("Task %s failed to archive: %v\n", f.TaskID, f.Err)
				}
				if len(summary.Archived) == 0 && len(summary.Already) == 0 {
					fmt.Println("No STOPPED or DIED tasks were found to archive.")
					return nil
				}
				fmt.Printf("Archived %d task(s); %d already archived; %d skipped (running); %d failed.\n",
					len(summary.Archived), len(summary.Already), len(summary.Skipped), len(summary.Failures))
				return nil
			}

			if len(args) != 1 {
				return fail(fmt.Errorf("a task id is required unless --all is given"))
			}
			result, err := svc.ArchiveTask(ctx, args[0])
			if err != nil {
				return fail(err)
			}
			if result.Outcome == service.ArchiveOutcomeAlreadyArchived {
				fmt.Printf("Task %s is already archived.\n", args[0])
				return nil
			}
			fmt.Printf("Task %s archived to %s.\n", result.TaskID, result.Destination)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "archive every stopped or died task")
	return cmd
}
