package logger

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds logging configuration.
type Config struct {
	Level          string `yaml:"level"`
	ConsoleEnabled bool   `yaml:"console_enabled"`
	ConsoleFormat  string `yaml:"console_format"`
	FileEnabled    bool   `yaml:"file_enabled"`
	FilePath       string `yaml:"file_path"`
	FileFormat     string `yaml:"file_format"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

type fileConfig struct {
	Logging Config `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is present:
// warnings and errors to stderr, no log file. Diagnosis output goes to
// stdout, so the default level keeps the two streams from interleaving.
func DefaultConfig() Config {
	return Config{
		Level:          "WARNING",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FileEnabled:    false,
		FilePath:       "logs/delveprobe.log",
		FileFormat:     "json",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig reads the logging section of a YAML config file, merging it
// over the defaults, then applies environment variable overrides. A
// missing or unparsable file silently yields the defaults.
func LoadConfig(configPath string) Config {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err == nil {
				if fc.Logging.Level != "" {
					config.Level = fc.Logging.Level
				}
				config.ConsoleEnabled = fc.Logging.ConsoleEnabled
				if fc.Logging.ConsoleFormat != "" {
					config.ConsoleFormat = fc.Logging.ConsoleFormat
				}
				config.FileEnabled = fc.Logging.FileEnabled
				if fc.Logging.FilePath != "" {
					config.FilePath = fc.Logging.FilePath
				}
				if fc.Logging.FileFormat != "" {
					config.FileFormat = fc.Logging.FileFormat
				}
				if fc.Logging.FileMaxSizeMB > 0 {
					config.FileMaxSizeMB = fc.Logging.FileMaxSizeMB
				}
				if fc.Logging.FileMaxBackups > 0 {
					config.FileMaxBackups = fc.Logging.FileMaxBackups
				}
				if fc.Logging.FileMaxAgeDays > 0 {
					config.FileMaxAgeDays = fc.Logging.FileMaxAgeDays
				}
			}
		}
	}

	if logLevel := os.Getenv("DELVEPROBE_LOG_LEVEL"); logLevel != "" {
		config.Level = logLevel
	}
	if consoleFormat := os.Getenv("DELVEPROBE_LOG_CONSOLE_FORMAT"); consoleFormat != "" {
		config.ConsoleFormat = consoleFormat
	}
	if fileEnabled := os.Getenv("DELVEPROBE_LOG_FILE_ENABLED"); fileEnabled != "" {
		if enabled, err := strconv.ParseBool(fileEnabled); err == nil {
			config.FileEnabled = enabled
		}
	}
	if filePath := os.Getenv("DELVEPROBE_LOG_FILE_PATH"); filePath != "" {
		config.FilePath = filePath
	}

	return config
}
