package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 存放应用级配置，可由 YAML 文件覆盖默认值。
type Config struct {
	DBPath       string `yaml:"db_path"`
	ArchiveRoot  string `yaml:"archive_root"`
	ManifestPath string `yaml:"manifest_path"`
	ExportDir    string `yaml:"export_dir"`
	ListenAddr   string `yaml:"listen_addr"`
	Workers      int    `yaml:"workers"`
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		DBPath:      "data/inspector.db",
		ArchiveRoot: "/data/xnat/archive",
		ListenAddr:  "127.0.0.1:8787",
	}
}

// LoadConfig 读取 YAML 配置文件并套用在默认值之上。
// path 为空时直接返回默认配置。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if strings.TrimSpace(c.ArchiveRoot) == "" && strings.TrimSpace(c.ManifestPath) == "" {
		return fmt.Errorf("config: archive_root or manifest_path is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	return nil
}
