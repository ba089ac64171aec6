package cli

import (
	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/worker"
)

// newWorkerCmd builds the hidden `worker` subcommand the launcher re-execs
// the binary into. It is never invoked directly by a user.
func newWorkerCmd() *cobra.Command {
	var storeRoot, title, prompt, configPath, workingDir string

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := worker.NewConfig(storeRoot, title, prompt, configPath, workingDir)
			if err != nil {
				return err
			}
			return worker.Run(cfg)
		},
	}

	cmd.Flags().StringVar(&storeRoot, "store-root", "", "task store root")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&prompt, "prompt", "", "initial prompt (falls back to CODEX_TASK_PROMPT)")
	cmd.Flags().StringVar(&configPath, "config-path", "", "custom codex config.toml")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "working directory for the assistant subprocess")

	return cmd
}
