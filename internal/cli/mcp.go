package cli

import (
	"os"

	"github.com/spf13/cobra"

	"changkun.de/codextasks/internal/mcpserver"
	"changkun.de/codextasks/internal/service"
	"changkun.de/codextasks/internal/taskstore"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the JSON-RPC (MCP) task server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := resolveStoreRoot()
			var store *taskstore.Store
			if root == "" {
				s, err := taskstore.Default()
				if err != nil {
					return fail(err)
				}
				store = s
				root = store.Root()
			} else {
				store = taskstore.New(root)
			}

			svc := service.New(store, service.WithArchiveCache())
			srv := mcpserver.New(svc, mcpserver.Config{StoreRoot: root, ConfigPath: configPath})
			return srv.Run(os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "custom codex config.toml, reported in the server's startup log only")
	return cmd
}
