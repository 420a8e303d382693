package screen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"TickerScreen/internal/history"
	"TickerScreen/internal/model"
	"TickerScreen/internal/store"
	"TickerScreen/internal/strategy"
)

// Runner screens stored symbols for consolidation.
type Runner struct {
	Store   store.Store
	Loader  *history.Loader
	Params  strategy.Params
	Workers int
}

// NewRunner creates a new Runner.
func NewRunner(s store.Store, params strategy.Params, workers int) *Runner {
	return &Runner{Store: s, Loader: history.NewLoader(s), Params: params, Workers: workers}
}

// Result is the outcome of one screen.
type Result struct {
	RunID     string
	Policy    strategy.Policy
	Evaluated int
	Matches   []model.Match // sorted by symbol
	Skipped   []model.Skip  // symbols that could not be analysed, sorted by symbol
	Duration  time.Duration
}

// Run evaluates each symbol (every stored symbol when symbols is empty) over
// its history after since. Analysis errors skip the symbol; storage errors
// fail the run.
func (r *Runner) Run(ctx context.Context, symbols []string, since time.Time) (*Result, error) {
	start := time.Now()
	if len(symbols) == 0 {
		all, err := r.Store.DistinctSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("screen: %w", err)
		}
		symbols = all
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	res := &Result{RunID: uuid.New().String()[:8], Policy: r.Params.Policy}
	logger := log.With().Str("run", res.RunID).Logger()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sym := range symbols {
		g.Go(func() error {
			bars, err := r.Loader.Load(gctx, sym, since)
			if err != nil && !errors.Is(err, history.ErrInvalidSeries) {
				return err
			}
			var v strategy.Verdict
			if err == nil {
				v, err = strategy.Evaluate(bars, r.Params)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Evaluated++
			switch {
			case errors.Is(err, history.ErrInvalidSeries),
				errors.Is(err, strategy.ErrEmptySeries),
				errors.Is(err, strategy.ErrShortSeries):
				logger.Warn().Str("symbol", sym).Err(err).Msg("skipping symbol")
				res.Skipped = append(res.Skipped, model.Skip{Key: sym, Reason: err.Error()})
			case err != nil:
				return fmt.Errorf("screen %s: %w", sym, err)
			case v.Consolidating:
				res.Matches = append(res.Matches, model.Match{Symbol: sym, Latest: v.Latest})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}

	sort.Slice(res.Matches, func(i, j int) bool { return res.Matches[i].Symbol < res.Matches[j].Symbol })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Key < res.Skipped[j].Key })
	res.Duration = time.Since(start)

	logger.Info().
		Str("policy", string(res.Policy)).
		Int("evaluated", res.Evaluated).
		Int("matched", len(res.Matches)).
		Int("skipped", len(res.Skipped)).
		Dur("took", res.Duration).
		Msg("screen done")
	return res, nil
}
