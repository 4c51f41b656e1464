package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// resetState clears package-level logging state between tests.
func resetState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

func setupWorkspace(t *testing.T, configYAML string) string {
	t.Helper()
	resetState()
	t.Cleanup(resetState)

	ws := t.TempDir()
	if configYAML != "" {
		dir := filepath.Join(ws, ".sensei")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return ws
}

func TestInitializeDebugMode(t *testing.T) {
	ws := setupWorkspace(t, "logging:\n  debug_mode: true\n  level: debug\n")

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("debug mode should be enabled")
	}

	Retrieval("retrieval message %d", 42)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".sensei", "logs"))
	if err != nil {
		t.Fatalf("logs directory missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "retrieval") {
			found = true
			data, _ := os.ReadFile(filepath.Join(ws, ".sensei", "logs", e.Name()))
			if !strings.Contains(string(data), "retrieval message 42") {
				t.Errorf("log file missing message: %s", data)
			}
		}
	}
	if !found {
		t.Error("expected a retrieval log file")
	}
}

func TestProductionModeIsSilent(t *testing.T) {
	ws := setupWorkspace(t, "") // no config at all

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("no config means production mode")
	}

	Store("should go nowhere")
	Comprehension("also nowhere")

	if _, err := os.Stat(filepath.Join(ws, ".sensei", "logs")); !os.IsNotExist(err) {
		t.Error("production mode must not create a logs directory")
	}
}

func TestCategoryDisabled(t *testing.T) {
	ws := setupWorkspace(t, "logging:\n  debug_mode: true\n  categories:\n    store: false\n")

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryStore) {
		t.Error("store category is explicitly disabled")
	}
	if !IsCategoryEnabled(CategoryRetrieval) {
		t.Error("unlisted categories default to enabled")
	}

	// Writing to a disabled category is a safe no-op.
	Store("dropped")
}

func TestLogLevelFiltering(t *testing.T) {
	ws := setupWorkspace(t, "logging:\n  debug_mode: true\n  level: warn\n")

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryTutor)
	l.Debug("debug suppressed")
	l.Info("info suppressed")
	l.Warn("warn kept")
	l.Error("error kept")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(ws, ".sensei", "logs"))
	for _, e := range entries {
		if !strings.Contains(e.Name(), "tutor") {
			continue
		}
		data, _ := os.ReadFile(filepath.Join(ws, ".sensei", "logs", e.Name()))
		content := string(data)
		if strings.Contains(content, "suppressed") {
			t.Errorf("messages below warn must be filtered: %s", content)
		}
		if !strings.Contains(content, "warn kept") || !strings.Contains(content, "error kept") {
			t.Errorf("warn and error must pass the filter: %s", content)
		}
	}
}

func TestNilSafeLogger(t *testing.T) {
	resetState()
	t.Cleanup(resetState)

	// Uninitialized logging never panics.
	Get(CategoryBoot).Info("no workspace yet")
	Boot("still fine")
	StartTimer(CategoryStore, "op").Stop()
}
