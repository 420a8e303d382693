package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TickerScreen/internal/model"
)

// ErrFetch marks a provider failure for a single request. Callers may skip
// the affected date and continue.
var ErrFetch = errors.New("provider fetch failed")

// ErrBreakerOpen is returned without contacting the provider while the
// circuit breaker is open. It wraps ErrFetch.
var ErrBreakerOpen = fmt.Errorf("%w: circuit open", ErrFetch)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchGroupedDaily returns every symbol's daily bar for one session.
	// A session without data (holiday, future date) yields an empty slice.
	FetchGroupedDaily(ctx context.Context, market, locale string, date time.Time) ([]model.RawBar, error)
	Name() string
}
