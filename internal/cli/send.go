package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/service"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <task-id> <prompt>",
		Short: "Send a follow-up prompt to an existing task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return fail(err)
			}
			if err := svc.SendPrompt(context.Background(), service.SendPromptParams{TaskID: args[0], Prompt: args[1]}); err != nil {
				return fail(err)
			}
			fmt.Printf("Prompt sent to task %s.\n", args[0])
			return nil
		},
	}
}
