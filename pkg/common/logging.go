package common

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// LogFormat represents a supported logging format
type LogFormat string

// Available log formats
const (
	LogFormatPlain LogFormat = "plain"
	LogFormatJSON  LogFormat = "json"
)

var (
	logger = logrus.New()
	// ValidLogFormats contains all supported logging formats
	ValidLogFormats = []LogFormat{LogFormatPlain, LogFormatJSON}
)

func init() {
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// IsValidLogFormat checks if the given format is supported
func IsValidLogFormat(format string) bool {
	for _, validFormat := range ValidLogFormats {
		if string(validFormat) == format {
			return true
		}
	}
	return false
}

// SetLogFormat sets the log formatter. Timestamps can be disabled for
// deterministic output in tests and pipelines.
func SetLogFormat(format string, timestamps bool) error {
	if !IsValidLogFormat(format) {
		return fmt.Errorf("invalid log format %q. Valid formats are: %v", format, ValidLogFormats)
	}

	timestampFormat := ""
	if timestamps {
		timestampFormat = "2006-01-02 15:04:05"
	}

	switch LogFormat(format) {
	case LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  timestampFormat,
			DisableTimestamp: !timestamps,
		})
	case LogFormatPlain:
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat:  timestampFormat,
			FullTimestamp:    timestamps,
			DisableTimestamp: !timestamps,
		})
	}
	return nil
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
}

// SetLogFile sets the output file for logging
func SetLogFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	logger.SetOutput(file)
	return nil
}

// SetRunID sets a run ID field that will be included in all subsequent log entries
func SetRunID(id string) {
	logger.AddHook(&runIDHook{id: id})
}

// runIDHook adds the run ID to all log entries
type runIDHook struct {
	id string
}

func (h *runIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *runIDHook) Fire(entry *logrus.Entry) error {
	entry.Data["run_id"] = h.id
	return nil
}

// LogDebug logs a debug message
func LogDebug(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Debug(msg)
}

// LogInfo logs an info message
func LogInfo(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Info(msg)
}

// LogWarn logs a warning message
func LogWarn(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Warn(msg)
}

// LogError logs an error message
func LogError(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Error(msg)
}

// DebugOutput logs a debug message using fmt.Sprintf style formatting.
// It respects the configured log level and formatter.
func DebugOutput(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
