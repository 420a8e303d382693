package model

import "time"

// Bar is one symbol's OHLCV for one trading session, as persisted in the row store.
// (Date, Symbol) is the primary key.
type Bar struct {
	Symbol    string  `db:"symbol"`
	Open      float64 `db:"open"`
	Close     float64 `db:"close"`
	High      float64 `db:"high"`
	Low       float64 `db:"low"`
	Volume    float64 `db:"volume"`
	VW        float64 `db:"vw"`
	Date      int64   `db:"date"`       // session timestamp, epoch milliseconds
	UpdatedAt int64   `db:"updated_at"` // local ingestion time, epoch milliseconds
}

// Time returns the session timestamp as a UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Date).UTC()
}

// RawBar is the grouped-daily record shape returned by the provider.
type RawBar struct {
	Symbol string   `json:"T"`
	Open   float64  `json:"o"`
	Close  float64  `json:"c"`
	High   float64  `json:"h"`
	Low    float64  `json:"l"`
	Volume float64  `json:"v"`
	VW     *float64 `json:"vw,omitempty"` // absent for some thinly traded symbols
	Date   int64    `json:"t"`
}

// ToBar maps a provider record to a Bar. A missing volume-weighted price
// falls back to the open.
func (r RawBar) ToBar() Bar {
	vw := r.Open
	if r.VW != nil {
		vw = *r.VW
	}
	return Bar{
		Symbol: r.Symbol,
		Open:   r.Open,
		Close:  r.Close,
		High:   r.High,
		Low:    r.Low,
		Volume: r.Volume,
		VW:     vw,
		Date:   r.Date,
	}
}
