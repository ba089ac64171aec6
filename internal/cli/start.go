package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/envconfig"
	"changkun.de/codextasks/internal/service"
)

func newStartCmd() *cobra.Command {
	var title, configFile, workingDir, repoURL, repoRef string
	var remember bool

	cmd := &cobra.Command{
		Use:   "start <prompt>",
		Short: "Start a new task with an initial prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := loadDefaults()
			if title == "" {
				title = defaults.Title
			}
			if configFile == "" {
				configFile = defaults.ConfigFile
			}
			if workingDir == "" {
				workingDir = defaults.WorkingDir
			}
			if repoURL == "" {
				repoURL = defaults.Repo
			}

			prompt, err := resolveStartPrompt(args[0])
			if err != nil {
				return fail(err)
			}

			svc, err := buildService()
			if err != nil {
				return fail(err)
			}

			result, err := svc.StartTask(context.Background(), service.StartTaskParams{
				Title:      title,
				Prompt:     prompt,
				ConfigFile: configFile,
				WorkingDir: workingDir,
				RepoURL:    repoURL,
				RepoRef:    repoRef,
			})
			if err != nil {
				return fail(err)
			}

			if remember {
				path, pathErr := defaultsPath()
				if pathErr == nil {
					t, c, w, r := title, configFile, workingDir, repoURL
					_ = envconfig.Update(path, &t, &c, &w, &r)
				}
			}

			fmt.Printf("Task %s started.\n", result.ThreadID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "human-readable title for the task")
	cmd.Flags().StringVar(&configFile, "config-file", "", "custom codex config.toml to use for this task")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "working directory for the assistant subprocess")
	cmd.Flags().StringVar(&repoURL, "repo", "", "clone this repository into --working-dir before starting")
	cmd.Flags().StringVar(&repoRef, "repo-ref", "", "ref to check out after cloning --repo")
	cmd.Flags().BoolVar(&remember, "remember", false, "save title/config-file/working-dir/repo as future defaults")

	return cmd
}

// resolveStartPrompt reads the prompt body from stdin when raw is the
// literal "-", and rejects an empty prompt either way.
func resolveStartPrompt(raw string) (string, error) {
	if raw == "-" {
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		if strings.TrimSpace(string(buf)) == "" {
			return "", fmt.Errorf("no prompt provided via stdin")
		}
		return string(buf), nil
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("prompt must not be empty")
	}
	return raw, nil
}
