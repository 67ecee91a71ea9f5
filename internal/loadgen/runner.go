package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sessiond/pkg/logger"
)

// ErrVerification is returned when fetched sessions differ from the
// generated ones.
var ErrVerification = errors.New("verification failed")

// Report is the outcome of a run.
type Report struct {
	Stats      Stats
	Mismatches []Mismatch
}

// Run generates pairs, posts them concurrently, waits for pending writes
// and verifies every player's sessions.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg.Normalize()
	log := logger.Get().Named("loadgen")
	report := &Report{Stats: Stats{StartTime: time.Now()}}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("sessionsPerPlayer", cfg.SessionsPerPlayer),
		logger.Int("outOfOrderEvery", cfg.OutOfOrderEvery),
		logger.Int("workers", cfg.Workers),
	)

	client := NewHTTPClient(cfg)
	if err := client.Health(ctx); err != nil {
		return report, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	pairs := gen.Pairs(cfg)
	batches := gen.Batches(pairs, cfg.BatchSize)
	report.Stats.PairsGenerated = len(pairs)

	if err := submit(ctx, cfg, client, batches, &report.Stats, log); err != nil {
		return report, fmt.Errorf("event submission failed: %w", err)
	}
	if err := settle(ctx, cfg, client); err != nil {
		log.Warn(ctx, "pending writes did not settle", logger.Error(err))
	}

	expected := Expected(pairs, cfg.FetchLimit)
	players := make([]string, 0, len(expected))
	for p := range expected {
		players = append(players, p)
	}
	sort.Strings(players)
	for _, p := range players {
		got, err := client.Sessions(ctx, p)
		if err != nil {
			return report, fmt.Errorf("fetch failed: %w", err)
		}
		report.Mismatches = append(report.Mismatches, Verify(p, expected[p], got)...)
		report.Stats.PlayersVerified++
	}
	report.Stats.Mismatches = len(report.Mismatches)
	report.Stats.EndTime = time.Now()
	report.Stats.Duration = report.Stats.EndTime.Sub(report.Stats.StartTime)

	logFinalStats(ctx, log, report.Stats)
	if len(report.Mismatches) > 0 {
		shown := report.Mismatches[:1]
		if cfg.Verbose {
			shown = report.Mismatches
		}
		for _, m := range shown {
			log.Error(ctx, "session mismatch", logger.String("player_id", m.PlayerID), logger.String("reason", m.Reason))
		}
		return report, fmt.Errorf("%w: %d mismatches", ErrVerification, len(report.Mismatches))
	}
	return report, nil
}

// submit posts batches from a pool of cfg.Workers goroutines.
func submit(ctx context.Context, cfg Config, client *HTTPClient, batches [][]Event, stats *Stats, log logger.Logger) error {
	var (
		accepted, ordering, failed int64
		promoted, outOfOrder       int64
		firstErr                   atomic.Pointer[error]
	)

	work := make(chan []Event, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				payload, err := EncodeBatch(batch, cfg.InlineItems)
				if err != nil {
					firstErr.CompareAndSwap(nil, &err)
					atomic.AddInt64(&failed, 1)
					continue
				}
				status, sum, err := client.PostBatch(ctx, payload)
				if err != nil {
					firstErr.CompareAndSwap(nil, &err)
					atomic.AddInt64(&failed, 1)
					continue
				}
				if status == http.StatusConflict {
					atomic.AddInt64(&ordering, 1)
				} else {
					atomic.AddInt64(&accepted, 1)
				}
				atomic.AddInt64(&promoted, int64(sum.Promoted))
				atomic.AddInt64(&outOfOrder, int64(sum.OutOfOrder))
				if cfg.Verbose {
					log.Debug(ctx, "batch applied", logger.Int("status", status), logger.Int("promoted", sum.Promoted))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, b := range batches {
			select {
			case <-ctx.Done():
				return
			case work <- b:
			}
		}
	}()
	wg.Wait()

	stats.BatchesSubmitted = len(batches)
	stats.BatchesAccepted = int(accepted)
	stats.BatchesOrdering = int(ordering)
	stats.BatchesFailed = int(failed)
	stats.Promoted = int(promoted)
	stats.OutOfOrder = int(outOfOrder)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p := firstErr.Load(); p != nil {
		return fmt.Errorf("%d batches failed: %w", failed, *p)
	}
	return nil
}

// settle polls the tracker until every submitted write has been observed.
func settle(ctx context.Context, cfg Config, client *HTTPClient) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		st, err := client.Tracker(ctx)
		if err == nil && st.Pending == 0 && st.Observed == st.Submitted {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return err
			}
			return fmt.Errorf("%d writes pending: %w", st.Pending, ctx.Err())
		case <-ticker.C:
		}
	}
}

func logFinalStats(ctx context.Context, log logger.Logger, stats Stats) {
	var batchesPerSecond float64
	if stats.Duration > 0 {
		batchesPerSecond = float64(stats.BatchesSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("pairsGenerated", stats.PairsGenerated),
		logger.Int("batchesSubmitted", stats.BatchesSubmitted),
		logger.Int("batchesAccepted", stats.BatchesAccepted),
		logger.Int("batchesOrdering", stats.BatchesOrdering),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Int("promoted", stats.Promoted),
		logger.Int("outOfOrder", stats.OutOfOrder),
		logger.Int("playersVerified", stats.PlayersVerified),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("batchesPerSecond", batchesPerSecond),
	)
}
