// Package logger provides the component-scoped slog.Logger instances used
// throughout codex-tasks, plus a colorized handler for human-facing output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Package-level component loggers, initialized by Init (called with "text"
// from this package's init, and again by the CLI root command with the
// resolved --log-format).
var (
	CLI     *slog.Logger
	Service *slog.Logger
	Worker  *slog.Logger
	Store   *slog.Logger
	Git     *slog.Logger
	MCP     *slog.Logger
)

func init() {
	Init("text")
}

// Init (re)configures the package-level loggers. format is "text" (colored,
// human-friendly) or "json" (structured JSON). Either way the loggers write
// to stderr; they never write into a task's task.log.
func Init(format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = newPrettyHandler(os.Stderr, opts)
	}
	base := slog.New(h)
	CLI = base.With("component", "cli")
	Service = base.With("component", "service")
	Worker = base.With("component", "worker")
	Store = base.With("component", "store")
	Git = base.With("component", "git")
	MCP = base.With("component", "mcp")
}

// Fatal logs at error level and exits with code 1.
func Fatal(l *slog.Logger, msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}

// ANSI escape codes.
const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiGray   = "\033[90m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiCyan   = "\033[36m"
)

// prettyHandler formats log records for human consumption with alignment and color.
type prettyHandler struct {
	w        io.Writer
	opts     *slog.HandlerOptions
	mu       sync.Mutex
	preAttrs []slog.Attr
	color    bool
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *prettyHandler {
	return &prettyHandler{
		w:     w,
		opts:  opts,
		color: isColorEnabled(w),
	}
}

// isColorEnabled returns true when ANSI colors should be written to w.
// It respects NO_COLOR and TERM=dumb, and only enables colors on real
// terminals (checked via golang.org/x/term rather than a raw mode bit test,
// so the same logic works the same way the CLI's own TTY-dependent
// rendering choices do).
func isColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (h *prettyHandler) clone() *prettyHandler {
	cp := *h
	cp.preAttrs = h.preAttrs[:len(h.preAttrs):len(h.preAttrs)]
	return &cp
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := h.clone()
	cp.preAttrs = append(cp.preAttrs, attrs...)
	return cp
}

func (h *prettyHandler) WithGroup(_ string) slog.Handler {
	return h // groups are not used in this application
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	all := make([]slog.Attr, 0, len(h.preAttrs)+r.NumAttrs())
	all = append(all, h.preAttrs...)
	r.Attrs(func(a slog.Attr) bool {
		all = append(all, a)
		return true
	})

	component := ""
	extra := make([]slog.Attr, 0, len(all))
	for _, a := range all {
		if a.Key == "component" {
			component = a.Value.String()
		} else {
			extra = append(extra, a)
		}
	}

	col := func(code, s string) string {
		if h.color {
			return code + s + ansiReset
		}
		return s
	}

	var b strings.Builder

	b.WriteString(col(ansiDim, r.Time.Format("15:04:05.000")))
	b.WriteString("  ")

	switch r.Level {
	case slog.LevelDebug:
		b.WriteString(col(ansiGray, "DBG"))
	case slog.LevelInfo:
		b.WriteString(col(ansiGreen+ansiBold, "INF"))
	case slog.LevelWarn:
		b.WriteString(col(ansiYellow+ansiBold, "WRN"))
	default:
		b.WriteString(col(ansiRed+ansiBold, "ERR"))
	}
	b.WriteString("  ")

	b.WriteString(col(ansiCyan+ansiDim, fmt.Sprintf("%-8s", component)))
	b.WriteString("  ")

	b.WriteString(col(ansiBold, r.Message))

	if len(extra) > 0 {
		b.WriteString(col(ansiDim, "  │"))
		for _, a := range extra {
			b.WriteString("  ")
			b.WriteString(col(ansiDim, a.Key+"="))
			v := prettyValue(a.Value.Resolve())
			if a.Key == "error" {
				b.WriteString(col(ansiRed+ansiBold, v))
			} else {
				b.WriteString(v)
			}
		}
	}

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprint(h.w, b.String())
	return err
}

// prettyValue formats a slog.Value for display. String values that contain
// whitespace, quotes, or '=' are quoted so multi-word values cannot be
// mistaken for separate key=value tokens.
func prettyValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		s := v.String()
		if needsQuoting(s) {
			return fmt.Sprintf("%q", s)
		}
		return s
	}
	s := fmt.Sprintf("%v", v.Any())
	if needsQuoting(s) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '"' || r == '=' {
			return true
		}
	}
	return false
}
