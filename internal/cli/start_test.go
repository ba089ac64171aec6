package cli

import (
	"os"
	"testing"
)

func withStdin(t *testing.T, content string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	if _, err := w.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	w.Close()

	original := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = original
		r.Close()
	})
}

func TestResolveStartPromptPassesThroughLiteralArg(t *testing.T) {
	got, err := resolveStartPrompt("do the thing")
	if err != nil {
		t.Fatalf("resolveStartPrompt: %v", err)
	}
	if got != "do the thing" {
		t.Errorf("got %q, want %q", got, "do the thing")
	}
}

func TestResolveStartPromptRejectsBlankArg(t *testing.T) {
	if _, err := resolveStartPrompt("   "); err == nil {
		t.Fatal("expected an error for a blank prompt")
	}
}

func TestResolveStartPromptReadsStdinForDash(t *testing.T) {
	withStdin(t, "hello from stdin\n")

	got, err := resolveStartPrompt("-")
	if err != nil {
		t.Fatalf("resolveStartPrompt: %v", err)
	}
	if got != "hello from stdin\n" {
		t.Errorf("got %q", got)
	}
}

func TestResolveStartPromptRejectsEmptyStdin(t *testing.T) {
	withStdin(t, "   \n")

	if _, err := resolveStartPrompt("-"); err == nil {
		t.Fatal("expected an error for blank stdin")
	}
}
