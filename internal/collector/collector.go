package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TickerScreen/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Bars and Errors are keyed by YYYY-MM-DD.
type MockFetcher struct {
	Bars   map[string][]model.RawBar
	Errors map[string]error

	mu    sync.Mutex
	calls []string
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchGroupedDaily(_ context.Context, _, _ string, date time.Time) ([]model.RawBar, error) {
	key := date.Format(time.DateOnly)

	m.mu.Lock()
	m.calls = append(m.calls, key)
	m.mu.Unlock()

	if err, ok := m.Errors[key]; ok {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, key, err)
	}
	return m.Bars[key], nil
}

// Calls returns the dates requested so far, in call order.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// GenerateGroupedBars builds one session's grouped bars for the given symbols,
// all closing at price with the given volume.
func GenerateGroupedBars(date time.Time, price, volume float64, symbols ...string) []model.RawBar {
	bars := make([]model.RawBar, len(symbols))
	for i, s := range symbols {
		bars[i] = model.RawBar{
			Symbol: s,
			Open:   price * 0.999,
			Close:  price,
			High:   price * 1.005,
			Low:    price * 0.995,
			Volume: volume,
			Date:   date.UnixMilli(),
		}
	}
	return bars
}
