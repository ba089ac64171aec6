// Command codex-tasks manages long-running codex assistant tasks: starting
// detached workers, delivering follow-up prompts, inspecting status and
// logs, and archiving finished work. See `codex-tasks --help`.
package main

import (
	"fmt"
	"os"

	"changkun.de/codextasks/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
