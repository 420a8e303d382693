package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TickerScreen/internal/model"
	"TickerScreen/internal/store"
)

// ErrInvalidSeries marks a symbol whose stored rows cannot form a series.
// It concerns that symbol only; storage failures are returned unwrapped by it.
var ErrInvalidSeries = errors.New("invalid series")

// Loader reconstructs per-symbol time series from the row store.
type Loader struct {
	Store store.Store
}

// NewLoader creates a new Loader.
func NewLoader(s store.Store) *Loader {
	return &Loader{Store: s}
}

// Load returns the symbol's bars dated after since (zero means all history),
// oldest first. An unknown symbol yields an empty series.
func (l *Loader) Load(ctx context.Context, symbol string, since time.Time) ([]model.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("load history: %w: empty symbol", ErrInvalidSeries)
	}
	bars, err := l.Store.QueryRange(ctx, store.RangeQuery{Symbol: symbol, Since: since})
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", symbol, err)
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Date <= bars[i-1].Date {
			return nil, fmt.Errorf("load history for %s: %w: dates out of order at %d", symbol, ErrInvalidSeries, bars[i].Date)
		}
	}
	return bars, nil
}
