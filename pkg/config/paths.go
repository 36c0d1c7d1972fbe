package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// BaseSettingsDir returns the directory holding the active settings file.
// An empty string means no settings file was read.
func BaseSettingsDir() string {
	// Explicit override, mostly for tests
	if configPath := viper.GetString("config.path"); configPath != "" {
		return configPath
	}

	currentConfig := viper.ConfigFileUsed()
	if currentConfig == "" {
		return ""
	}
	return filepath.Dir(currentConfig)
}

// ResolvePath makes a relative path relative to the settings directory so that
// log files and databases follow the settings file around.
func ResolvePath(target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	base := BaseSettingsDir()
	if base == "" {
		return target
	}
	return filepath.Join(base, filepath.Base(target))
}
