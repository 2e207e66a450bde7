package votesim

import (
	"fmt"
	"os"

	"github.com/okian/pitchelo/pkg/logger"
)

// SetupLogging initializes the global logger for the simulator.
func SetupLogging(format string, verbose bool) error {
	if err := logger.InitWithFormat(format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Pitchelo Vote Simulator
=======================

Drives concurrent voter sessions against a running pitchelo server, then
checks that every category leaderboard still conserves match counts and
rating points and is correctly ordered.

Usage:
  go run ./cmd/vote-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of concurrent voter sessions (default 32)
  -rounds int
        Votes cast by each session (default 50)
  -categories string
        Comma-separated categories (default: all)
  -timeout duration
        HTTP request timeout (default 10s)
  -retries int
        Attempts per request on 429/503 (default 5)
  -log-format string
        text or json (default "text")
  -verbose
        Log every vote
  -help
        Show this help message

The checks assume no other client votes during the run.
`)
}
