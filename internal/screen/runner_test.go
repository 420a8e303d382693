package screen

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TickerScreen/internal/model"
	"TickerScreen/internal/store"
	"TickerScreen/internal/strategy"
)

func session(i int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// seed stores one bar per close, on consecutive days, for each symbol.
func seed(t *testing.T, series map[string][]float64, volume float64) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tickers.db"), "tickers")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(ctx))

	for sym, closes := range series {
		for i, c := range closes {
			require.NoError(t, s.Upsert(ctx, model.Bar{Symbol: sym, Close: c, Open: c, Volume: volume, Date: session(i).UnixMilli()}))
		}
	}
	require.NoError(t, s.CommitBatch(ctx))
	return s
}

func TestRun_TrailingAllSymbols(t *testing.T) {
	s := seed(t, map[string][]float64{
		"FLAT": {100, 101, 99, 100, 100, 100, 100, 100, 100, 100},
		"WIDE": {100, 80, 100, 100, 100, 100, 100, 100, 100, 100},
		"TINY": {10, 10, 10},
	}, 1000)

	res, err := NewRunner(s, strategy.TrailingDefaults(), 2).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Evaluated)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "FLAT", res.Matches[0].Symbol)
	assert.Equal(t, "TINY", res.Matches[1].Symbol)
	assert.Equal(t, session(9).UnixMilli(), res.Matches[0].Latest.Date)
	assert.Empty(t, res.Skipped)
}

func TestRun_GivenSymbolsAndUnknownSkipped(t *testing.T) {
	s := seed(t, map[string][]float64{
		"FLAT": {10, 10, 10},
		"WIDE": {10, 5, 10},
	}, 1000)

	res, err := NewRunner(s, strategy.TrailingDefaults(), 1).Run(context.Background(), []string{"WIDE", "GHOST"}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Evaluated)
	assert.Empty(t, res.Matches)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "GHOST", res.Skipped[0].Key)
}

// legacyRowsStore reports a blank symbol and an unordered series, as a table
// written by another tool might.
type legacyRowsStore struct {
	store.Store
}

func (l legacyRowsStore) DistinctSymbols(ctx context.Context) ([]string, error) {
	symbols, err := l.Store.DistinctSymbols(ctx)
	return append([]string{"", "BENT"}, symbols...), err
}

func (l legacyRowsStore) QueryRange(ctx context.Context, q store.RangeQuery) ([]model.Bar, error) {
	if q.Symbol == "BENT" {
		return []model.Bar{{Symbol: "BENT", Close: 10, Date: 2}, {Symbol: "BENT", Close: 10, Date: 1}}, nil
	}
	return l.Store.QueryRange(ctx, q)
}

func TestRun_InvalidSeriesSkippedNotFatal(t *testing.T) {
	s := seed(t, map[string][]float64{"FLAT": {10, 10, 10}}, 1000)

	res, err := NewRunner(legacyRowsStore{s}, strategy.TrailingDefaults(), 2).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Evaluated)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "FLAT", res.Matches[0].Symbol)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "", res.Skipped[0].Key)
	assert.Equal(t, "BENT", res.Skipped[1].Key)
}

func TestRun_LookbackRestrictsHistory(t *testing.T) {
	// the low close is the first session; a lookback starting there excludes it
	s := seed(t, map[string][]float64{"ROSE": {50, 100, 100, 100}}, 1000)

	res, err := NewRunner(s, strategy.TrailingDefaults(), 1).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	res, err = NewRunner(s, strategy.TrailingDefaults(), 1).Run(context.Background(), nil, session(0))
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "ROSE", res.Matches[0].Symbol)
}

func TestRun_RollingPolicy(t *testing.T) {
	s := seed(t, map[string][]float64{
		"LIQUID": {10, 10, 10, 10, 10},
		"SHORT":  {10, 10},
	}, 300000)

	res, err := NewRunner(s, strategy.RollingDefaults(), 4).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "LIQUID", res.Matches[0].Symbol)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "SHORT", res.Skipped[0].Key)

	thin := seed(t, map[string][]float64{"THIN": {10, 10, 10, 10, 10}}, 180000)
	res, err = NewRunner(thin, strategy.RollingDefaults(), 1).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) QueryRange(context.Context, store.RangeQuery) ([]model.Bar, error) {
	return nil, store.ErrConnection
}

func TestRun_StorageErrorFailsRun(t *testing.T) {
	s := seed(t, map[string][]float64{"FLAT": {10, 10}}, 1)
	_, err := NewRunner(brokenStore{s}, strategy.TrailingDefaults(), 1).Run(context.Background(), nil, time.Time{})
	assert.True(t, errors.Is(err, store.ErrConnection))
}

func TestRun_EmptyStore(t *testing.T) {
	s := seed(t, nil, 0)
	res, err := NewRunner(s, strategy.TrailingDefaults(), 1).Run(context.Background(), nil, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, res.Matches)
}
