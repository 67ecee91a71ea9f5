package loadgen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/sessiond/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to stdout and to logFile. An empty logFile
// gets a timestamped name; "-" disables the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "-" {
		if logFile == "" {
			logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	if err := logger.InitWithOptions(logger.Options{Output: out}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`sessiond load generator
=======================

Generates player sessions, posts their start and end events in shuffled
batches and verifies what the service returns for every player.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -players int         Distinct players (default 100)
  -sessions int        Sessions per player (default 5)
  -out-of-order int    Every Nth session gets end <= start; 0 disables (default 7)
  -batch int           Events per request, at most 10 (default 10)
  -inline              Send items as objects instead of JSON strings
  -fetch-limit int     Sessions the service returns per player (default 20)
  -workers int         Concurrent submitters (default 8)
  -timeout duration    HTTP request timeout (default 10s)
  -settle duration     Wait for pending writes before verifying (default 30s)
  -seed uint           Generator seed (default: current time)
  -log string          Log file, "-" for none (default: loadgen_TIMESTAMP.log)
  -verbose             Enable verbose logging
  -help                Show this help message

Examples:
  go run ./cmd/loadgen -players 1000 -sessions 30 -workers 16
  go run ./cmd/loadgen -seed 42 -out-of-order 0 -log -
`)
}
