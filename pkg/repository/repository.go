package repository

import (
	"context"

	"github.com/tandemlab/tandem/pkg/model"
)

// Repository is the relational session store boundary. Context records are
// stored as opaque blobs keyed by session ID; the store never interprets
// them. Search history is an append-only audit log.
type Repository interface {
	// GetContext returns the serialized context record for a session, or
	// (nil, nil) when the session has no record yet
	GetContext(ctx context.Context, id model.SessionID) ([]byte, error)

	// PutContext upserts the serialized context record for a session.
	// Last writer wins; there is no concurrency control on the blob.
	PutContext(ctx context.Context, id model.SessionID, blob []byte) error

	// PutSearchHistory appends one row to the search audit log
	PutSearchHistory(ctx context.Context, history *model.SearchHistory) error

	// ListSearchHistory returns the newest search history rows for a session
	ListSearchHistory(ctx context.Context, id model.SessionID, limit int) ([]*model.SearchHistory, error)
}
