package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionContexts        = "contexts"
	collectionSearchHistories = "search_histories"
)

// firestoreRepo implements Repository using Firestore
type firestoreRepo struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string) (Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &firestoreRepo{client: client}, nil
}

type contextDoc struct {
	SessionID string    `firestore:"session_id"`
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type searchHistoryDoc struct {
	ID             string    `firestore:"id"`
	Query          string    `firestore:"query"`
	ResultsSummary string    `firestore:"results_summary"`
	SourceURLs     []string  `firestore:"source_urls"`
	SessionID      string    `firestore:"session_id"`
	CreatedAt      time.Time `firestore:"created_at"`
}

func (r *firestoreRepo) GetContext(ctx context.Context, id model.SessionID) ([]byte, error) {
	snap, err := r.client.Collection(collectionContexts).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get context", goerr.V("session_id", id))
	}

	var doc contextDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode context document", goerr.V("session_id", id))
	}

	return doc.Data, nil
}

func (r *firestoreRepo) PutContext(ctx context.Context, id model.SessionID, blob []byte) error {
	doc := contextDoc{
		SessionID: string(id),
		Data:      blob,
		UpdatedAt: time.Now(),
	}

	if _, err := r.client.Collection(collectionContexts).Doc(string(id)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put context", goerr.V("session_id", id))
	}

	return nil
}

func (r *firestoreRepo) PutSearchHistory(ctx context.Context, history *model.SearchHistory) error {
	doc := searchHistoryDoc{
		ID:             string(history.ID),
		Query:          history.Query,
		ResultsSummary: history.ResultsSummary,
		SourceURLs:     history.SourceURLs,
		SessionID:      string(history.SessionID),
		CreatedAt:      history.CreatedAt,
	}

	if _, err := r.client.Collection(collectionSearchHistories).Doc(string(history.ID)).Create(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put search history", goerr.V("search_id", history.ID))
	}

	return nil
}

func (r *firestoreRepo) ListSearchHistory(ctx context.Context, id model.SessionID, limit int) ([]*model.SearchHistory, error) {
	query := r.client.Collection(collectionSearchHistories).
		Where("session_id", "==", string(id)).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var histories []*model.SearchHistory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate search histories", goerr.V("session_id", id))
		}

		var doc searchHistoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode search history document")
		}

		histories = append(histories, &model.SearchHistory{
			ID:             model.SearchID(doc.ID),
			Query:          doc.Query,
			ResultsSummary: doc.ResultsSummary,
			SourceURLs:     doc.SourceURLs,
			SessionID:      model.SessionID(doc.SessionID),
			CreatedAt:      doc.CreatedAt,
		})
	}

	return histories, nil
}
