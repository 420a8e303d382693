package calendar

import (
	"fmt"
	"time"
)

// Calendar enumerates exchange business days: weekdays that are not holidays.
type Calendar struct {
	holidays map[string]struct{}
}

// New creates a Calendar with the given holidays (YYYY-MM-DD).
func New(holidays []string) (*Calendar, error) {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(time.DateOnly, h)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		c.holidays[d.Format(time.DateOnly)] = struct{}{}
	}
	return c, nil
}

// IsBusinessDay reports whether the provider can have data for d.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d.Format(time.DateOnly)]
	return !holiday
}

// BusinessDays returns the business days in [start, end] inclusive, oldest first.
// Times of day are ignored.
func (c *Calendar) BusinessDays(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Lookback returns the business days in [today - days, today].
func (c *Calendar) Lookback(today time.Time, days int) []time.Time {
	return c.BusinessDays(today.AddDate(0, 0, -days), today)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
