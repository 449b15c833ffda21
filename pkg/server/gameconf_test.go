package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConf(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultGameConfValid(t *testing.T) {
	gc := DefaultGameConf()
	if err := gc.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if gc.Messaging.HistoryCap != 30 || gc.Messaging.PreserveCap != 200 {
		t.Errorf("caps = %d/%d, want 30/200", gc.Messaging.HistoryCap, gc.Messaging.PreserveCap)
	}
	if gc.Messaging.EditWindow != 48*time.Hour {
		t.Errorf("edit window = %s, want 48h", gc.Messaging.EditWindow)
	}
}

func TestLoadGameConf(t *testing.T) {
	path := writeConf(t, "game.yaml", `
mud_name: Crystal Shores
starting_money: 250
messaging:
  history_cap: 10
  edit_window: 24h
  embargo: 90m
  ic_year_offset: -1016
`)
	gc, err := LoadGameConf(path)
	if err != nil {
		t.Fatalf("LoadGameConf: %v", err)
	}
	if gc.MudName != "Crystal Shores" || gc.StartingMoney != 250 {
		t.Errorf("identity = %q/%d", gc.MudName, gc.StartingMoney)
	}
	m := gc.Messaging
	if m.HistoryCap != 10 || m.EditWindow != 24*time.Hour || m.Embargo != 90*time.Minute {
		t.Errorf("messaging = %+v", m)
	}
	// Keys missing from the file keep their defaults.
	if m.PreserveCap != 200 || gc.Port != 6250 {
		t.Errorf("defaults lost: preserve=%d port=%d", m.PreserveCap, gc.Port)
	}
	if got := m.ICDate(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)); !strings.Contains(got, "1010") {
		t.Errorf("ICDate = %q, want year 1010", got)
	}
}

func TestLoadGameConfInvalid(t *testing.T) {
	tests := []struct {
		name, body string
	}{
		{"zero history", "messaging:\n  history_cap: 0\n"},
		{"sql without path", "sql_enabled: true\n"},
		{"bad port", "port: 70000\n"},
		{"empty name", "mud_name: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadGameConf(writeConf(t, "game.yaml", tt.body)); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadGameConfExtension(t *testing.T) {
	if _, err := LoadGameConf(writeConf(t, "game.conf", "mud_name: x\n")); err == nil {
		t.Errorf("expected error for non-YAML extension")
	}
}

func TestApplyGameConfPushesPolicy(t *testing.T) {
	env := newTestEnv(t)
	gc := DefaultGameConf()
	gc.Messaging.HistoryCap = 5
	env.game.ApplyGameConf(gc)
	if got := env.game.Msgs.Policy().HistoryCap; got != 5 {
		t.Errorf("HistoryCap = %d, want 5", got)
	}
}

func TestReloadConf(t *testing.T) {
	env := newTestEnv(t)
	env.game.ConfPath = writeConf(t, "game.yaml", "mud_name: Reloaded\n")
	if out := env.run(env.god, "@reloadconf"); out != "Configuration reloaded." {
		t.Fatalf("@reloadconf: got %q", out)
	}
	if env.game.Config().MudName != "Reloaded" {
		t.Errorf("MudName = %q", env.game.Config().MudName)
	}
}
