package service

import (
	"os/exec"
	"testing"
)

// spawnAndReap runs and waits on a short-lived child process, returning its
// pid. Once reaped, the pid is guaranteed not to identify a running process
// (barring pid reuse, which is astronomically unlikely within a test run).
func spawnAndReap(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	return cmd.Process.Pid
}
