// Package config holds the viper-backed configuration singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Call once at
// application startup.
//
// Config file precedence: explicit path > ./gradewatch.yaml >
// ~/.config/gradewatch/gradewatch.yaml. Environment variables with the
// GRADEWATCH_ prefix override file values, e.g. GRADEWATCH_API_KEY for
// api.key.
func Initialize(explicitPath string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		configFileSet = true
	}

	if !configFileSet {
		if cwd, err := os.Getwd(); err == nil {
			path := filepath.Join(cwd, "gradewatch.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			path := filepath.Join(configDir, "gradewatch", "gradewatch.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("GRADEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults()

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	v.SetDefault("api.key", "")
	v.SetDefault("api.secret", "")
	v.SetDefault("api.domain", "")

	v.SetDefault("scrape_times", []string{"07:30", "15:30"})

	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.timeout_ms", 30000)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay_ms", 5000)

	v.SetDefault("journal.path", defaultJournalPath())
	v.SetDefault("journal.retention_days", 90)

	v.SetDefault("notifications.timeout_ms", 30000)
	v.SetDefault("notifications.pushover.token", "")
	v.SetDefault("notifications.pushover.user", "")
	v.SetDefault("notifications.pushover.device", "")
	v.SetDefault("notifications.email.host", "")
	v.SetDefault("notifications.email.port", 587)
	v.SetDefault("notifications.email.username", "")
	v.SetDefault("notifications.email.password", "")
	v.SetDefault("notifications.email.from", "")
	v.SetDefault("notifications.email.recipients", "")
	v.SetDefault("notifications.claude.api_key", "")
	v.SetDefault("notifications.claude.model", "")

	v.SetDefault("healthcheck.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
}

func defaultStoragePath() string {
	return filepath.Join(dataDir(), "grades.db")
}

func defaultJournalPath() string {
	return filepath.Join(dataDir(), "journal.jsonl")
}

func dataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".gradewatch")
	}
	return ".gradewatch"
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetStringSlice retrieves a string slice configuration value.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// GetMilliseconds reads an integer millisecond value as a duration.
func GetMilliseconds(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Millisecond
}

// Set overrides a configuration value. Used by tests and flag binding.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configuration value as a nested map.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}
