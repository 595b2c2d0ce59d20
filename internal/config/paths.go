package config

import (
	"os"
	"path/filepath"
)

const appName = "asiportal"

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return appName + "-data"
		}
	}
	return filepath.Join(dir, appName)
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, appName, "config.yaml")
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// ConfigFilePath returns the path of the YAML config file.
func ConfigFilePath() string {
	return configFilePath()
}
