package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pointConfigAway keeps LoadConfig from picking up a stray config.yaml in
// the working directory.
func pointConfigAway(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestLoadConfigDefaults(t *testing.T) {
	pointConfigAway(t)

	cfg := LoadConfig()
	if cfg.DBPath != "./alexaudit.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ReportOutputDir != "./reports" {
		t.Errorf("ReportOutputDir = %q", cfg.ReportOutputDir)
	}
	if cfg.FetchTimeoutSeconds != 30 {
		t.Errorf("FetchTimeoutSeconds = %d", cfg.FetchTimeoutSeconds)
	}
	if cfg.ShortWordMax != 1 {
		t.Errorf("ShortWordMax = %d", cfg.ShortWordMax)
	}
	if cfg.WatchDays != 7 {
		t.Errorf("WatchDays = %d", cfg.WatchDays)
	}
	if len(cfg.WakeWords) == 0 {
		t.Error("WakeWords should default to the built-in list")
	}
	if cfg.Location == nil {
		t.Error("Location should be resolved")
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
db_path: /tmp/audit.db
short_word_max: 2
duplicate_window_seconds: 300
short_includes_sr: true
wake_words:
  - alexa
  - computer
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig()
	if cfg.DBPath != "/tmp/audit.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ShortWordMax != 2 {
		t.Errorf("ShortWordMax = %d, want 2", cfg.ShortWordMax)
	}
	if len(cfg.WakeWords) != 2 {
		t.Errorf("WakeWords = %v, want the two configured", cfg.WakeWords)
	}

	rules := cfg.Rules()
	if rules.ShortWordMax != 2 {
		t.Errorf("rules.ShortWordMax = %d, want 2", rules.ShortWordMax)
	}
	if rules.DuplicateWindow != 5*time.Minute {
		t.Errorf("rules.DuplicateWindow = %s, want 5m", rules.DuplicateWindow)
	}
	if !rules.EvaluateShortForSR {
		t.Error("rules.EvaluateShortForSR should be set")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	pointConfigAway(t)
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("SHORT_WORD_MAX", "3")
	t.Setenv("COUNT_WAKE_WORD", "true")
	t.Setenv("WAKE_WORDS", "alexa, echo ,")

	cfg := LoadConfig()
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ShortWordMax != 3 {
		t.Errorf("ShortWordMax = %d, want 3", cfg.ShortWordMax)
	}
	if !cfg.CountWakeWord {
		t.Error("CountWakeWord should be set from env")
	}
	if len(cfg.WakeWords) != 2 || cfg.WakeWords[0] != "alexa" || cfg.WakeWords[1] != "echo" {
		t.Errorf("WakeWords = %v, want [alexa echo]", cfg.WakeWords)
	}
}

func TestSlackConfigured(t *testing.T) {
	cfg := Config{}
	if cfg.SlackConfigured() {
		t.Error("empty config should not be slack-configured")
	}
	cfg.SlackBotToken = "xoxb-test"
	cfg.ReportChannelID = "C123"
	if !cfg.SlackConfigured() {
		t.Error("token + channel should be slack-configured")
	}
}
