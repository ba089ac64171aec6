package taskstore

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// DeriveState combines a task's stored metadata state with the liveness of
// its recorded worker PID (if any) into the effective state a caller should
// observe. It never mutates the metadata itself — callers decide whether
// and how to persist the derived value.
//
// pid is nil when no task.pid file exists (or it was already removed).
func DeriveState(metadataState State, pid *int) (State, error) {
	if pid != nil {
		alive, err := IsProcessRunning(*pid)
		if err != nil {
			return "", err
		}
		if alive {
			switch metadataState {
			case StateRunning:
				return StateRunning, nil
			case StateStopped:
				return StateStopped, nil
			case StateArchived:
				return StateArchived, nil
			case StateDied:
				// The worker came back; the stored DIED verdict is stale.
				return StateRunning, nil
			}
		}
	}
	return deriveWithoutPID(metadataState), nil
}

func deriveWithoutPID(metadataState State) State {
	if metadataState == StateRunning {
		return StateDied
	}
	return metadataState
}

// IsProcessRunning reports whether pid identifies a live process, using a
// signal-0 probe. EPERM (process exists, owned by another user) counts as
// alive; ESRCH counts as not alive. Any other errno indicates the probe
// itself failed and is propagated rather than silently treated as "not
// running" (see DESIGN.md for why this deviates from the reference
// implementation's looser handling of unexpected errno values).
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true, nil
	}
	switch {
	case errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("probe liveness of pid %d: %w", pid, err)
	}
}
