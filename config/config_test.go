package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.yaml", `source:
  kind: websocket
  url: "ws://modem.local/cells"
history:
  path: /var/lib/cellinfo
  retention_days: 30
`)
	writeFile(t, dir, "site.yaml", `history:
  retention_days: 90
mqtt:
  enabled: true
  broker: broker.local
`)
	writeFile(t, dir, "notes.txt", "ignored")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := filepath.Clean(cfg.LoadedFrom); got != filepath.Clean(dir) {
		t.Fatalf("expected LoadedFrom=%s, got %s", dir, got)
	}
	if cfg.Source.Kind != SourceWebSocket || cfg.Source.URL != "ws://modem.local/cells" {
		t.Fatalf("expected source from app.yaml, got %+v", cfg.Source)
	}
	if cfg.History.Path != "/var/lib/cellinfo" {
		t.Fatalf("expected history.path to survive merge, got %q", cfg.History.Path)
	}
	if cfg.History.RetentionDays != 90 {
		t.Fatalf("expected site.yaml to override retention, got %d", cfg.History.RetentionDays)
	}
	if cfg.History.CheckpointDir != filepath.Join("/var/lib/cellinfo", "checkpoint") {
		t.Fatalf("unexpected checkpoint dir %q", cfg.History.CheckpointDir)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Port != 1883 {
		t.Fatalf("expected mqtt defaults, got %+v", cfg.MQTT)
	}
}

func TestLoadSingleFileDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cellinfo.yaml", "display:\n  compact: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Poll.IntervalMS != 1000 || cfg.Poll.LogQueueDepth != 8 {
		t.Fatalf("unexpected poll defaults %+v", cfg.Poll)
	}
	if cfg.Source.Kind != SourceReplay || cfg.Source.MaxAgeSeconds != 10 {
		t.Fatalf("unexpected source defaults %+v", cfg.Source)
	}
	if !cfg.Display.Compact || !cfg.Display.IsEnabled() || !cfg.Prefs.WatchEnabled() {
		t.Fatalf("unexpected display/prefs %+v %+v", cfg.Display, cfg.Prefs)
	}
	if *cfg.Logging.StatsIntervalSeconds != 300 {
		t.Fatalf("expected default stats interval 300, got %d", *cfg.Logging.StatsIntervalSeconds)
	}
}

func TestLoadStatsIntervalAllowsZero(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", "logging:\n  stats_interval_seconds: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if *cfg.Logging.StatsIntervalSeconds != 0 {
		t.Fatalf("expected stats_interval_seconds=0, got %d", *cfg.Logging.StatsIntervalSeconds)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"unknown source", "source:\n  kind: serial\n", "source.kind"},
		{"websocket without url", "source:\n  kind: websocket\n", "source.url"},
		{"negative retention", "history:\n  retention_days: -1\n", "retention_days"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n", "mqtt.broker"},
		{"bad qos", "mqtt:\n  qos: 3\n", "mqtt.qos"},
		{"bad yaml", "poll: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "app.yaml", tt.text)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory without yaml files")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvPath, "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("expected default path, got %q", got)
	}
	t.Setenv(EnvPath, "/etc/cellinfo")
	if got := ResolvePath(""); got != "/etc/cellinfo" {
		t.Fatalf("expected env path, got %q", got)
	}
	if got := ResolvePath("./local.yaml"); got != "./local.yaml" {
		t.Fatalf("expected explicit path, got %q", got)
	}
}
