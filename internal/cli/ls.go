package cli

import (
	"context"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

func newLsCmd() *cobra.Command {
	var (
		all        bool
		stateFlag  string
		timeFormat string
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}

			opts := service.ListOptions{IncludeArchived: all}
			if stateFlag != "" {
				for _, s := range strings.Split(stateFlag, ",") {
					s = strings.TrimSpace(s)
					if s == "" {
						continue
					}
					opts.States = append(opts.States, taskstore.State(s))
				}
			}

			tasks, err := svc.ListTasks(context.Background(), opts)
			if err != nil {
				return fail(err)
			}

			renderTaskTable(tasks, timeFormat)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include archived tasks")
	cmd.Flags().StringVar(&stateFlag, "state", "", "only show tasks in these comma-separated states (RUNNING, STOPPED, DIED, ARCHIVED)")
	cmd.Flags().StringVar(&timeFormat, "time-format", "unix", `timestamp style: "unix" or "iso"`)

	return cmd
}

func renderTaskTable(tasks []taskstore.Metadata, timeFormat string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "State", "Title", "Updated"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, t := range tasks {
		table.Append([]string{t.ID, stateBadge(t.State), t.Title, formatTime(t.UpdatedAt, timeFormat)})
	}
	table.Render()
}
