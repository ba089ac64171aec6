package cli

import "time"

// formatTime renders t per the --time-format flag: "unix" for the classic
// `ls -l` style (e.g. "Oct 12 10:01"), "iso" for RFC3339.
func formatTime(t time.Time, format string) string {
	if format == "iso" {
		return t.Format(time.RFC3339)
	}
	return t.Local().Format("Jan _2 15:04")
}
