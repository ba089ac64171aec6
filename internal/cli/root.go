// Package cli implements the codex-tasks command-line surface: start,
// send, status, log, ls, stop, archive, the hidden worker re-exec target,
// and the mcp server subcommand. It renders the same internal/service
// operations the MCP adapter exposes, formatted for a terminal.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"changkun.de/codextasks/internal/envconfig"
	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

var (
	flagStoreRoot string
	flagLogFormat string
)

// NewRootCommand builds the codex-tasks root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "codex-tasks",
		Short:         "Manage long-running codex assistant tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(flagLogFormat)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagStoreRoot, "store-root", "", "task store root (defaults to $CODEX_HOME/tasks or $HOME/.codex/tasks)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", `control-process log format: "text" or "json"`)
	_ = viper.BindPFlag("store_root", root.PersistentFlags().Lookup("store-root"))
	viper.SetEnvPrefix("codex_tasks")
	viper.AutomaticEnv()

	root.AddCommand(newStartCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newMCPCmd())

	return root
}

// resolveStoreRoot returns the effective store root: the --store-root
// flag if set, else viper's resolved value (flag/env), else "" so the
// caller falls back to taskstore.Default().
func resolveStoreRoot() string {
	if flagStoreRoot != "" {
		return flagStoreRoot
	}
	return viper.GetString("store_root")
}

// buildService constructs a Service for a single CLI invocation. The CLI
// never enables the archive cache: each invocation is short-lived, so
// memoizing an archive lookup across calls would only serve stale data to
// the next, unrelated invocation.
func buildService() (*service.Service, error) {
	root := resolveStoreRoot()
	if root == "" {
		store, err := taskstore.Default()
		if err != nil {
			return nil, fmt.Errorf("resolve default task store: %w", err)
		}
		return service.New(store), nil
	}
	return service.New(taskstore.New(root)), nil
}

// defaultsPath returns the location of the optional per-user defaults file
// consulted by `start`, honoring the same store root resolution as the
// rest of the CLI.
func defaultsPath() (string, error) {
	root := resolveStoreRoot()
	if root == "" {
		store, err := taskstore.Default()
		if err != nil {
			return "", err
		}
		root = store.Root()
	}
	return root + string(os.PathSeparator) + "defaults.env", nil
}

func loadDefaults() envconfig.Config {
	path, err := defaultsPath()
	if err != nil {
		return envconfig.Config{}
	}
	cfg, err := envconfig.Parse(path)
	if err != nil {
		return envconfig.Config{}
	}
	return cfg
}

// ExitCode maps a service.Error's Kind to a process exit code.
func ExitCode(err error) int {
	svcErr, ok := err.(*service.Error)
	if !ok {
		return 1
	}
	switch svcErr.Kind {
	case service.KindNotFound:
		return 2
	case service.KindInvalidState, service.KindValidation, service.KindConflict:
		return 3
	case service.KindWorkerUnreachable:
		return 4
	case service.KindTimeout:
		return 5
	default:
		return 1
	}
}

// fail returns err unchanged as the command's error; main (in
// cmd/codex-tasks) prints it to stderr and turns it into a process exit
// code via ExitCode.
func fail(err error) error {
	return err
}
