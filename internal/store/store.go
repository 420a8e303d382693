package store

import (
	"context"
	"errors"
	"time"

	"TickerScreen/internal/model"
)

var (
	// ErrConnection means the storage engine is unreachable or misconfigured.
	ErrConnection = errors.New("storage connection failed")
	// ErrSchema means a table of the same name exists with an incompatible shape.
	ErrSchema = errors.New("incompatible schema")
	// ErrCommit means a pending batch could not be made durable. Committed
	// batches are unaffected; the run that produced the batch can be retried.
	ErrCommit = errors.New("batch commit failed")
)

// RangeQuery filters a bar scan. Zero values mean "no restriction".
type RangeQuery struct {
	Symbol string
	Since  time.Time // exclusive lower bound on the session date
}

// Store is durable keyed storage for bars, keyed by (date, symbol).
type Store interface {
	// CreateSchema creates the bar table if absent.
	CreateSchema(ctx context.Context) error
	// Upsert inserts the bar or replaces every non-key field of the existing
	// row with the same key. Not durable until CommitBatch.
	Upsert(ctx context.Context, bar model.Bar) error
	// CommitBatch makes every Upsert since the last commit durable.
	CommitBatch(ctx context.Context) error
	// RollbackBatch discards every Upsert since the last commit.
	RollbackBatch() error
	DistinctSymbols(ctx context.Context) ([]string, error)
	// QueryRange returns matching bars ordered by date ascending.
	QueryRange(ctx context.Context, q RangeQuery) ([]model.Bar, error)
	Close() error
}
