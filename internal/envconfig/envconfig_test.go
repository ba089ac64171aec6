package envconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMissingFile(t *testing.T) {
	cfg, err := Parse(filepath.Join(t.TempDir(), "defaults.env"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero Config, got %+v", cfg)
	}
}

func TestUpdateCreatesAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.env")
	title := "nightly sweep"
	cfgFile := "/home/user/.codex/config.toml"
	if err := Update(path, &title, &cfgFile, nil, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Title != title {
		t.Fatalf("Title = %q, want %q", cfg.Title, title)
	}
	if cfg.ConfigFile != cfgFile {
		t.Fatalf("ConfigFile = %q, want %q", cfg.ConfigFile, cfgFile)
	}
	if cfg.WorkingDir != "" {
		t.Fatalf("WorkingDir = %q, want empty", cfg.WorkingDir)
	}
}

func TestUpdateClearsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.env")
	title := "first"
	if err := Update(path, &title, nil, nil, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	empty := ""
	if err := Update(path, &empty, nil, nil, nil); err != nil {
		t.Fatalf("Update clear: %v", err)
	}
	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Title != "" {
		t.Fatalf("Title = %q, want cleared", cfg.Title)
	}
}

func TestUpdatePreservesUnknownLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.env")
	if err := os.WriteFile(path, []byte("# a comment\nSOME_OTHER_KEY=keepme\n"), 0600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	title := "second"
	if err := Update(path, &title, nil, nil, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(raw)
	if !contains(got, "SOME_OTHER_KEY=keepme") {
		t.Fatalf("expected unknown key preserved, got %q", got)
	}
	if !contains(got, "CODEX_TASKS_DEFAULT_TITLE=second") {
		t.Fatalf("expected title set, got %q", got)
	}
}

func TestMaskToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"short":        "*****",
		"sk-ant-12345": "sk-...345",
	}
	for in, want := range cases {
		if got := MaskToken(in); got != want {
			t.Errorf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
