package strategy

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TickerScreen/internal/model"
)

func series(closes []float64, volumes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Symbol: "TEST", Close: c, Date: int64(i + 1)}
		if i < len(volumes) {
			bars[i].Volume = volumes[i]
		}
	}
	return bars
}

func TestTrailing_Cases(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   bool
	}{
		{"narrow range", []float64{100, 101, 99, 100, 100, 100, 100, 100, 100, 100}, true},
		{"one wide bar", []float64{100, 80, 100, 100, 100, 100, 100, 100, 100, 100}, false},
		{"flat", []float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50}, true},
		{"shorter than window", []float64{10, 10, 10}, true},
		{"single bar", []float64{42}, true},
		{"exactly at threshold", []float64{100, 98}, false},
		{"all zero closes", []float64{0, 0, 0}, false},
		{"nan close", []float64{10, math.NaN(), 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Trailing(series(tt.closes), TrailingDefaults())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Consolidating)
		})
	}
}

func TestTrailing_UsesOnlyLastWindow(t *testing.T) {
	// a wide bar older than the trailing ten does not count
	closes := []float64{50, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}
	v, err := Trailing(series(closes), TrailingDefaults())
	require.NoError(t, err)
	assert.True(t, v.Consolidating)
	assert.Equal(t, 10, v.Bars)
	assert.Equal(t, int64(11), v.Latest.Date)
}

func TestTrailing_IgnoresVolume(t *testing.T) {
	v, err := Trailing(series([]float64{10, 10, 10}, 1, 1, 1), TrailingDefaults())
	require.NoError(t, err)
	assert.True(t, v.Consolidating)
	assert.Equal(t, 3.0, v.Volume)
}

func TestTrailing_Empty(t *testing.T) {
	_, err := Trailing(nil, TrailingDefaults())
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestTrailing_CustomPct(t *testing.T) {
	p := TrailingDefaults()
	p.Pct = 25
	v, err := Trailing(series([]float64{100, 80}), p)
	require.NoError(t, err)
	assert.True(t, v.Consolidating)
}

func TestRolling_VolumeQualified(t *testing.T) {
	flat := []float64{10, 10, 10, 10, 10}

	got := slices.Collect(Rolling(series(flat, 300000, 300000, 300000, 300000, 300000), RollingDefaults()))
	require.Len(t, got, 1)
	assert.True(t, got[0].Consolidating)
	assert.Equal(t, 1_500_000.0, got[0].Volume)

	got = slices.Collect(Rolling(series(flat, 180000, 180000, 180000, 180000, 180000), RollingDefaults()))
	require.Len(t, got, 1)
	assert.False(t, got[0].Consolidating)
}

func TestRolling_OneSignalPerFullWindow(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 5, 10, 10}
	vols := []float64{1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6}

	got := slices.Collect(Rolling(series(closes, vols...), RollingDefaults()))
	require.Len(t, got, len(closes)-5+1)

	want := []bool{true, false, false, false}
	for i, v := range got {
		assert.Equal(t, want[i], v.Consolidating, "window ending at %d", v.Latest.Date)
	}
	assert.Equal(t, int64(5), got[0].Latest.Date)
	assert.Equal(t, int64(8), got[3].Latest.Date)
}

func TestRolling_ShortSeriesIsEmpty(t *testing.T) {
	got := slices.Collect(Rolling(series([]float64{10, 10}), RollingDefaults()))
	assert.Empty(t, got)
}

func TestRolling_StopsEarly(t *testing.T) {
	bars := series([]float64{1, 1, 1, 1, 1, 1, 1, 1}, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6)
	n := 0
	for range Rolling(bars, RollingDefaults()) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEvaluate_Policies(t *testing.T) {
	bars := series([]float64{10, 10, 10}, 1e6, 1e6, 1e6)

	v, err := Evaluate(bars, TrailingDefaults())
	require.NoError(t, err)
	assert.True(t, v.Consolidating)

	_, err = Evaluate(bars, RollingDefaults())
	assert.True(t, errors.Is(err, ErrShortSeries))

	_, err = Evaluate(nil, RollingDefaults())
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = Evaluate(bars, Params{Policy: "median", Window: 3})
	assert.Error(t, err)
}

func TestEvaluate_RejectsBadRollingWindow(t *testing.T) {
	bars := series([]float64{10, 10, 10}, 1e6, 1e6, 1e6)
	for _, w := range []int{0, -2} {
		_, err := Evaluate(bars, Params{Policy: PolicyRolling, Window: w, Pct: 2, MinVolume: 1})
		assert.ErrorIs(t, err, ErrInvalidWindow, "window %d", w)
	}

	// a zero trailing window judges the whole series
	v, err := Evaluate(bars, Params{Policy: PolicyTrailing, Window: 0, Pct: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Bars)
}

func TestEvaluate_RollingUsesLastWindow(t *testing.T) {
	bars := series([]float64{5, 10, 10, 10, 10, 10}, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6)
	v, err := Evaluate(bars, RollingDefaults())
	require.NoError(t, err)
	assert.True(t, v.Consolidating)
	assert.Equal(t, int64(6), v.Latest.Date)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	bars := series([]float64{3, 1, 2})
	orig := slices.Clone(bars)
	_, _ = Evaluate(bars, TrailingDefaults())
	_ = slices.Collect(Rolling(bars, Params{Policy: PolicyRolling, Window: 2, Pct: 2}))
	assert.Equal(t, orig, bars)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("rolling")
	require.NoError(t, err)
	assert.Equal(t, PolicyRolling, p)

	_, err = ParsePolicy("weekly")
	assert.Error(t, err)
}
