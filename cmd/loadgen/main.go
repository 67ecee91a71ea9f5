package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/sessiond/internal/loadgen"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL    = flag.String("url", loadgen.DefaultBaseURL, "Base URL of the service")
		players    = flag.Int("players", loadgen.DefaultPlayers, "Distinct players")
		sessions   = flag.Int("sessions", loadgen.DefaultSessionsPerPlayer, "Sessions per player")
		outOfOrder = flag.Int("out-of-order", loadgen.DefaultOutOfOrderEvery, "Every Nth session gets end <= start; 0 disables")
		batch      = flag.Int("batch", loadgen.DefaultBatchSize, "Events per request")
		inline     = flag.Bool("inline", false, "Send items as objects instead of JSON strings")
		fetchLimit = flag.Int("fetch-limit", loadgen.DefaultFetchLimit, "Sessions the service returns per player")
		workers    = flag.Int("workers", loadgen.DefaultWorkers, "Concurrent submitters")
		timeout    = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", loadgen.DefaultSettleTimeout, "Wait for pending writes before verifying")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed") //nolint:gosec // non-negative
		logFile    = flag.String("log", "", "Log file, - for none")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return 0
	}

	closer, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	_, err = loadgen.Run(ctx, loadgen.Config{
		BaseURL:           *baseURL,
		Players:           *players,
		SessionsPerPlayer: *sessions,
		OutOfOrderEvery:   *outOfOrder,
		BatchSize:         *batch,
		InlineItems:       *inline,
		FetchLimit:        *fetchLimit,
		Workers:           *workers,
		Timeout:           *timeout,
		SettleTimeout:     *settle,
		Seed:              *seed,
		Verbose:           *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		return 1
	}
	return 0
}
