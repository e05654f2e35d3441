package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional taskctl.yaml.
type fileConfig struct {
	API       string `yaml:"api"`
	LocalFile string `yaml:"local_file"`
	LogLevel  string `yaml:"log_level"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "taskctl.yaml"
	}
	return filepath.Join(dir, "taskctl", "taskctl.yaml")
}

func defaultLocalFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tasks.json"
	}
	return filepath.Join(dir, "taskctl", "tasks.json")
}
