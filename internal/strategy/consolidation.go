package strategy

import (
	"errors"
	"fmt"
	"iter"

	"TickerScreen/internal/calculator"
	"TickerScreen/internal/model"
)

// Policy selects how a series is judged.
type Policy string

const (
	// PolicyTrailing judges only the trailing window of the series. Volume is ignored.
	PolicyTrailing Policy = "trailing"
	// PolicyRolling judges every full window and additionally requires the
	// window's total volume to exceed MinVolume.
	PolicyRolling Policy = "rolling"
)

var (
	// ErrEmptySeries is returned when a series has no bars.
	ErrEmptySeries = errors.New("empty series")
	// ErrShortSeries is returned when the rolling policy has no full window.
	ErrShortSeries = errors.New("series shorter than window")
	// ErrInvalidWindow is returned for a rolling window below one bar.
	ErrInvalidWindow = errors.New("window must be at least 1")
)

// Params configures a consolidation policy.
type Params struct {
	Policy    Policy
	Window    int     // bars per window
	Pct       float64 // max close range, in percent of the highest close
	MinVolume float64 // rolling only: window volume must exceed this
}

// TrailingDefaults is two trading weeks within 2%.
func TrailingDefaults() Params {
	return Params{Policy: PolicyTrailing, Window: 10, Pct: 2}
}

// RollingDefaults is one trading week within 2% on more than a million shares.
func RollingDefaults() Params {
	return Params{Policy: PolicyRolling, Window: 5, Pct: 2, MinVolume: 1_000_000}
}

// Threshold is the fraction of the highest close the lowest close must exceed.
func (p Params) Threshold() float64 {
	return 1 - p.Pct/100
}

// Verdict is the consolidation decision for one window.
type Verdict struct {
	Consolidating bool
	High          float64 // highest close in the window
	Low           float64 // lowest close in the window
	Volume        float64 // total volume in the window
	Bars          int     // window length actually used
	Latest        model.Bar
}

func judge(window []model.Bar, p Params, useVolume bool) (Verdict, error) {
	high, low, err := calculator.CloseRange(window)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrEmptySeries, err)
	}
	vol := calculator.VolumeSum(window)

	// NaN closes compare false and yield "not consolidating".
	ok := low > high*p.Threshold()
	if useVolume {
		ok = ok && vol > p.MinVolume
	}
	return Verdict{
		Consolidating: ok,
		High:          high,
		Low:           low,
		Volume:        vol,
		Bars:          len(window),
		Latest:        window[len(window)-1],
	}, nil
}

// Trailing judges the last Window bars, or every bar when the series is shorter.
func Trailing(bars []model.Bar, p Params) (Verdict, error) {
	if len(bars) == 0 {
		return Verdict{}, ErrEmptySeries
	}
	return judge(calculator.Trailing(bars, p.Window), p, false)
}

// Rolling yields one verdict per full window, oldest first. A series shorter
// than Window yields nothing.
func Rolling(bars []model.Bar, p Params) iter.Seq[Verdict] {
	return func(yield func(Verdict) bool) {
		if p.Window <= 0 {
			return
		}
		for end := p.Window; end <= len(bars); end++ {
			v, err := judge(bars[end-p.Window:end], p, true)
			if err != nil || !yield(v) {
				return
			}
		}
	}
}

// Evaluate returns the end-of-series verdict under the configured policy.
func Evaluate(bars []model.Bar, p Params) (Verdict, error) {
	switch p.Policy {
	case PolicyTrailing, "":
		return Trailing(bars, p)
	case PolicyRolling:
		if p.Window < 1 {
			return Verdict{}, fmt.Errorf("%w: got %d", ErrInvalidWindow, p.Window)
		}
		if len(bars) == 0 {
			return Verdict{}, ErrEmptySeries
		}
		if len(bars) < p.Window {
			return Verdict{}, fmt.Errorf("%w: %d bars, window %d", ErrShortSeries, len(bars), p.Window)
		}
		return judge(bars[len(bars)-p.Window:], p, true)
	default:
		return Verdict{}, fmt.Errorf("unknown policy %q", p.Policy)
	}
}

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyTrailing, PolicyRolling:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown policy %q (use trailing or rolling)", s)
}
