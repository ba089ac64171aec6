package taskstore

import (
	"os"
	"os/exec"
	"testing"
)

func TestDeriveState(t *testing.T) {
	livePID := os.Getpid()
	deadPID := spawnAndReap(t)

	cases := []struct {
		name     string
		stored   State
		pid      *int
		want     State
	}{
		{"running+alive", StateRunning, &livePID, StateRunning},
		{"stopped+alive", StateStopped, &livePID, StateStopped},
		{"archived+alive", StateArchived, &livePID, StateArchived},
		{"died+alive worker came back", StateDied, &livePID, StateRunning},
		{"running+dead", StateRunning, &deadPID, StateDied},
		{"stopped+dead", StateStopped, &deadPID, StateStopped},
		{"archived+dead", StateArchived, &deadPID, StateArchived},
		{"died+dead", StateDied, &deadPID, StateDied},
		{"running+no pid", StateRunning, nil, StateDied},
		{"stopped+no pid", StateStopped, nil, StateStopped},
		{"archived+no pid", StateArchived, nil, StateArchived},
		{"died+no pid", StateDied, nil, StateDied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeriveState(tc.stored, tc.pid)
			if err != nil {
				t.Fatalf("DeriveState: %v", err)
			}
			if got != tc.want {
				t.Errorf("DeriveState(%s, pid) = %s, want %s", tc.stored, got, tc.want)
			}
		})
	}
}

func TestIsProcessRunningSelf(t *testing.T) {
	alive, err := IsProcessRunning(os.Getpid())
	if err != nil {
		t.Fatalf("IsProcessRunning: %v", err)
	}
	if !alive {
		t.Fatalf("expected own process to be reported alive")
	}
}

func TestIsProcessRunningNonPositive(t *testing.T) {
	alive, err := IsProcessRunning(0)
	if err != nil {
		t.Fatalf("IsProcessRunning(0): %v", err)
	}
	if alive {
		t.Fatalf("expected pid 0 to be reported not running")
	}
}

// spawnAndReap returns a PID that is guaranteed not to be alive: a child
// process that has already been started and waited on.
func spawnAndReap(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	return cmd.Process.Pid
}
