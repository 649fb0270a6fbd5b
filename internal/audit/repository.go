package audit

import (
	"context"
	"time"
)

// RepositoryPort defines persistence for audit records. Insert is
// append-only; nothing in this interface mutates an existing record.
type RepositoryPort interface {
	Insert(ctx context.Context, entry Entry) error
	// Window returns one page of records matching the filters, newest
	// first. limit is expected to be pageSize+1 so the caller can detect a
	// next page.
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
	// All returns every record matching the filters, newest first.
	All(ctx context.Context, filters Filters) ([]Entry, error)
	// DeleteOlderThan removes records before the horizon. Used only by the
	// operational retention sweep, never by the decision or mutation paths.
	DeleteOlderThan(ctx context.Context, horizon time.Time) (int64, error)
}
