package model

// Match is a symbol flagged by the screen, paired with its most recent bar.
type Match struct {
	Symbol string
	Latest Bar
}

// Skip records a date or symbol left out of a run and why.
type Skip struct {
	Key    string
	Reason string
}
