package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"TickerScreen/internal/collector"
	"TickerScreen/internal/model"
	"TickerScreen/internal/store"
)

// Pipeline pulls grouped daily bars from the provider and upserts them into the store.
type Pipeline struct {
	Fetcher collector.Fetcher
	Store   store.Store
	Market  string
	Locale  string
	Workers int // concurrent provider fetches; values below 1 mean 1
}

// NewPipeline creates a new Pipeline.
func NewPipeline(f collector.Fetcher, s store.Store, market, locale string, workers int) *Pipeline {
	return &Pipeline{Fetcher: f, Store: s, Market: market, Locale: locale, Workers: workers}
}

// Report summarises one ingestion run.
type Report struct {
	RunID     string
	Requested int
	Fetched   []string     // dates whose bars were upserted
	Skipped   []model.Skip // dates the provider failed on
	Rows      int          // bars upserted
	Invalid   int          // provider records dropped for having no symbol
	Committed bool
	Duration  time.Duration
}

type fetchResult struct {
	bars []model.RawBar
	err  error
}

// Ingest fetches every date (oldest first), upserts what was fetched and commits once.
// A provider failure on one date skips that date. An upsert or commit failure
// fails the whole run; nothing from it is durable and it is safe to rerun.
func (p *Pipeline) Ingest(ctx context.Context, dates []time.Time) (*Report, error) {
	start := time.Now()
	dates = slices.Clone(dates)
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	rep := &Report{RunID: uuid.New().String()[:8], Requested: len(dates)}
	logger := log.With().Str("run", rep.RunID).Logger()
	results := p.fetchAll(ctx, dates)
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("ingest cancelled: %w", err)
	}

	for i, d := range dates {
		day := d.Format(time.DateOnly)
		res := results[i]
		if res.err != nil {
			logger.Warn().Str("date", day).Err(res.err).Msg("skipping date")
			rep.Skipped = append(rep.Skipped, model.Skip{Key: day, Reason: res.err.Error()})
			continue
		}

		for _, raw := range res.bars {
			if raw.Symbol == "" {
				rep.Invalid++
				continue
			}
			if err := p.Store.Upsert(ctx, raw.ToBar()); err != nil {
				if rbErr := p.Store.RollbackBatch(); rbErr != nil {
					logger.Error().Err(rbErr).Msg("rollback batch")
				}
				rep.Duration = time.Since(start)
				return rep, fmt.Errorf("ingest %s: %w", day, err)
			}
			rep.Rows++
		}
		rep.Fetched = append(rep.Fetched, day)
		logger.Info().Str("date", day).Int("bars", len(res.bars)).Msg("date ingested")
	}

	logger.Info().Int("rows", rep.Rows).Msg("committing batch")
	if err := p.Store.CommitBatch(ctx); err != nil {
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("ingest: %w", err)
	}
	rep.Committed = true
	rep.Duration = time.Since(start)

	logger.Info().
		Int("requested", rep.Requested).
		Int("fetched", len(rep.Fetched)).
		Int("skipped", len(rep.Skipped)).
		Int("rows", rep.Rows).
		Dur("took", rep.Duration).
		Msg("ingest done")
	return rep, nil
}

// fetchAll fetches every date over a bounded pool. Results are indexed like dates.
func (p *Pipeline) fetchAll(ctx context.Context, dates []time.Time) []fetchResult {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]fetchResult, len(dates))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, d := range dates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = fetchResult{err: err}
				return nil
			}
			log.Debug().Str("date", d.Format(time.DateOnly)).Msg("fetching grouped daily")
			bars, err := p.Fetcher.FetchGroupedDaily(ctx, p.Market, p.Locale, d)
			if err != nil && !errors.Is(err, collector.ErrFetch) {
				err = fmt.Errorf("%w: %v", collector.ErrFetch, err)
			}
			results[i] = fetchResult{bars: bars, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
