package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"100Mi", 100 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"10MB", 10 * 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseByteSize("lots"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("TRANSCRIBE_CONFIG", "")
	t.Setenv("STORAGE_DIR", filepath.Join(dir, "store"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Jobs.PollTimeout != 30*time.Second || cfg.Jobs.FileGrace != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.MaxUploadSize != ByteSize(100*1024*1024) {
		t.Fatalf("unexpected upload limit %d", cfg.Server.MaxUploadSize)
	}
	if strings.Join(cfg.Jobs.AllowedExtensions, ",") != "mp3,wav,m4a,ogg,flac" {
		t.Fatalf("unexpected extensions %v", cfg.Jobs.AllowedExtensions)
	}
	if _, err := os.Stat(filepath.Join(dir, "store")); err != nil {
		t.Fatalf("storage dir not created: %v", err)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoad_YAMLWithEnvExpansionAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("PG_PASS", "s3cret")
	t.Setenv("WORKERS", "3")
	t.Setenv("MODEL_SIZE", "")

	yaml := `
server:
  address: ":9090"
  maxUploadSize: 20Mi
  storageDir: "` + filepath.ToSlash(dir) + `"
  logLevel: debug
  logFormat: json
jobs:
  workers: 1
  allowedExtensions: [mp3, wav]
  pollTimeout: 5s
  fileGrace: 500ms
engine:
  modelSize: base
  threads: 4
history:
  postgresDsn: "postgres://app:${PG_PASS}@db:5432/transcribe"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MaxUploadSize != ByteSize(20*1024*1024) {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Jobs.Workers != 3 {
		t.Fatalf("WORKERS env should override yaml, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.FileGrace != 500*time.Millisecond || len(cfg.Jobs.AllowedExtensions) != 2 {
		t.Fatalf("unexpected jobs config %+v", cfg.Jobs)
	}
	if !strings.Contains(cfg.History.PostgresDSN, "s3cret") {
		t.Fatalf("env not expanded in dsn: %s", cfg.History.PostgresDSN)
	}
	if got := RedactDSN(cfg.History.PostgresDSN); strings.Contains(got, "s3cret") || !strings.Contains(got, "app:****@") {
		t.Fatalf("dsn not redacted: %s", got)
	}
	if cfg.Engine.ModelSize != "base" || cfg.Engine.WhisperPath != "whisper-cli" {
		t.Fatalf("unexpected engine config %+v", cfg.Engine)
	}
}

func TestLoad_RejectsUnknownModel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Setenv("MODEL_SIZE", "gigantic")
	content := "server:\n  storageDir: \"" + filepath.ToSlash(dir) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseLogLevel(t *testing.T) {
	if lvl, err := ParseLogLevel("WARN"); err != nil || lvl != slog.LevelWarn {
		t.Fatalf("ParseLogLevel(WARN) = %v, %v", lvl, err)
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TRANSCRIBE_TEST_STR", "value")
	t.Setenv("TRANSCRIBE_TEST_INT", "7")
	t.Setenv("TRANSCRIBE_TEST_BAD", "seven")

	if got := EnvOr("TRANSCRIBE_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvOr = %q", got)
	}
	if got := EnvOr("TRANSCRIBE_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("EnvOr unset = %q", got)
	}
	if got := EnvIntOr("TRANSCRIBE_TEST_INT", 1); got != 7 {
		t.Fatalf("EnvIntOr = %d", got)
	}
	if got := EnvIntOr("TRANSCRIBE_TEST_BAD", 1); got != 1 {
		t.Fatalf("EnvIntOr bad value = %d", got)
	}
}
