package calculator

import (
	"errors"
	"math"

	"TickerScreen/internal/model"
)

// ErrNoBars is returned when a window statistic is requested over no bars.
var ErrNoBars = errors.New("no bars provided")

// Trailing returns the last n bars, or all of them when fewer than n exist.
func Trailing(bars []model.Bar, n int) []model.Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// CloseRange returns the highest and lowest close over the given bars.
// A NaN close makes both results NaN.
func CloseRange(bars []model.Bar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, ErrNoBars
	}
	high, low = bars[0].Close, bars[0].Close
	for _, b := range bars[1:] {
		high = math.Max(high, b.Close)
		low = math.Min(low, b.Close)
	}
	return high, low, nil
}

// VolumeSum totals the volume over the given bars.
func VolumeSum(bars []model.Bar) float64 {
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum
}

// RangePct returns the close range as a percentage of the highest close.
func RangePct(high, low float64) float64 {
	if high == 0 {
		return 0
	}
	return (high - low) / high * 100
}
