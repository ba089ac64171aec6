package cli

import (
	"github.com/fatih/color"

	"changkun.de/codextasks/internal/taskstore"
)

var (
	runningBadge  = color.New(color.FgGreen, color.Bold).SprintFunc()
	stoppedBadge  = color.New(color.FgYellow).SprintFunc()
	diedBadge     = color.New(color.FgRed, color.Bold).SprintFunc()
	archivedBadge = color.New(color.FgHiBlack).SprintFunc()
)

// stateBadge renders state colorized for a terminal; color itself decides
// whether escapes are actually emitted based on whether stdout is a TTY.
func stateBadge(state taskstore.State) string {
	switch state {
	case taskstore.StateRunning:
		return runningBadge(string(state))
	case taskstore.StateStopped:
		return stoppedBadge(string(state))
	case taskstore.StateDied:
		return diedBadge(string(state))
	case taskstore.StateArchived:
		return archivedBadge(string(state))
	default:
		return string(state)
	}
}
