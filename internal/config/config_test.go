package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "talkwire.ini"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return root
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8085" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.Generator != "loopback" {
		t.Fatalf("unexpected generator %q", cfg.Generator)
	}
	if cfg.StreamIdleTimeout != 60*time.Second {
		t.Fatalf("unexpected idle timeout %v", cfg.StreamIdleTimeout)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	root := writeConfig(t, `
# comment
listen_addr = :9000
log_level = debug
stream_idle_timeout = 5s
sse_ping_interval = 15
`)
	t.Setenv("TALKWIRE_LOG_LEVEL", "info")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("file value ignored: %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("env override ignored: %q", cfg.LogLevel)
	}
	if cfg.StreamIdleTimeout != 5*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.StreamIdleTimeout)
	}
	if cfg.SSEPingInterval != 15*time.Second {
		t.Fatalf("bare seconds not parsed: %v", cfg.SSEPingInterval)
	}
}

func TestLoadGeneratorValidation(t *testing.T) {
	root := writeConfig(t, "generator = scripted\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error: scripted without script_path")
	}

	root = writeConfig(t, "generator = quantum\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error: unknown generator")
	}

	root = writeConfig(t, "generator = upstream\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error: upstream without api key")
	}
}
