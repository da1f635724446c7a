package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// OpenLogFile redirects logging to a file while the screen is in use.
func OpenLogFile(path string, level log.Level) (*log.Logger, io.Closer, error) {
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.NewWithOptions(logFile, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           level,
	})
	return logger, logFile, nil
}
