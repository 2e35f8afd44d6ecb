package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is used by both formatters
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var Logger *logrus.Logger

// InitLogger initializes the global logger
func InitLogger(level, format, output, file string) error {
	var out io.Writer = os.Stdout
	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		out = f
	}

	logger, err := NewLogger(level, format, out)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// NewLogger builds a logger writing to out without touching the global instance
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat})
	}

	logger.SetOutput(out)
	return logger, nil
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		// Initialize with defaults if not already initialized
		InitLogger("info", "text", "stdout", "")
	}
	return Logger
}
