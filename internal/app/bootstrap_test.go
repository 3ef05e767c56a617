package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "data/inspector.db" {
		t.Fatalf("unexpected default db path: %s", cfg.DBPath)
	}
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Fatalf("unexpected default listen addr: %s", cfg.ListenAddr)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
db_path: /var/lib/inspector/inspector.db
archive_root: /mnt/archive
export_dir: /var/lib/inspector/exports
listen_addr: 0.0.0.0:9090
workers: 4
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "/var/lib/inspector/inspector.db" {
		t.Fatalf("db path not overridden: %s", cfg.DBPath)
	}
	if cfg.ArchiveRoot != "/mnt/archive" {
		t.Fatalf("archive root not overridden: %s", cfg.ArchiveRoot)
	}
	if cfg.Workers != 4 {
		t.Fatalf("workers not overridden: %d", cfg.Workers)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("archive_root: /mnt/archive\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "data/inspector.db" {
		t.Fatalf("expected default db path to survive, got %s", cfg.DBPath)
	}
	if cfg.ArchiveRoot != "/mnt/archive" {
		t.Fatalf("archive root not overridden: %s", cfg.ArchiveRoot)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad yaml":         "db_path: [unclosed",
		"missing db":       "db_path: \"\"\narchive_root: /mnt/archive\n",
		"missing roots":    "archive_root: \"\"\n",
		"negative workers": "archive_root: /mnt/archive\nworkers: -2\n",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/no/such/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
