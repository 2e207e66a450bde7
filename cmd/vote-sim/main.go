package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/pitchelo/internal/votesim"
)

// Default configuration constants.
const (
	defaultSessions   = 32
	defaultRounds     = 50
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 5
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions   = flag.Int("sessions", defaultSessions, "Number of concurrent voter sessions")
		rounds     = flag.Int("rounds", defaultRounds, "Votes cast by each session")
		categories = flag.String("categories", "", "Comma-separated categories (default: all)")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		retries    = flag.Int("retries", defaultRetries, "Attempts per request on 429/503")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every vote")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		votesim.ShowHelp()
		return
	}

	if err := votesim.SetupLogging(*logFormat, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &votesim.Config{
		BaseURL:  strings.TrimRight(*baseURL, "/"),
		Sessions: *sessions,
		Rounds:   *rounds,
		Timeout:  *timeout,
		Retries:  *retries,
		Verbose:  *verbose,
	}
	if *categories != "" {
		cfg.Categories = strings.Split(*categories, ",")
	}

	if _, err := votesim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
