package searchmem

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"github.com/tandemlab/tandem/pkg/vectordb"
)

// DistanceThreshold is the cosine distance below which a stored search is
// considered the same information need. A neighbor at exactly the threshold
// is a miss; only strictly smaller distances hit. The value is a fixed
// global constant, trading recall for reproducibility.
const DistanceThreshold = 0.5

const (
	metaSearchID   = "search_id"
	metaSessionID  = "session_id"
	metaSourceURLs = "source_urls"
	metaTimestamp  = "timestamp"
)

// placeholderSummary stands in when a search produced no usable summary
// text, so the entry is still stored and can hit later
const placeholderSummary = "No summary available."

// Cache memoizes external search results by vector similarity. It is global
// across sessions: a question reworded in another session still hits.
// Entries are append-only and never refreshed; a stale entry keeps being
// served for as long as it stays the nearest neighbor.
type Cache struct {
	index  vectordb.Index
	gemini adapter.Gemini
}

// New creates a new semantic result cache
func New(index vectordb.Index, gemini adapter.Gemini) *Cache {
	return &Cache{
		index:  index,
		gemini: gemini,
	}
}

// CachedResult is a cache hit: the stored summary and its citation metadata
type CachedResult struct {
	Summary  string
	Metadata model.SearchMemoryMetadata
}

// Lookup returns the stored summary of the semantically nearest prior
// search, or (nil, nil) on a miss. A miss is expected control flow, not an
// error.
func (c *Cache) Lookup(ctx context.Context, query string) (*CachedResult, error) {
	embedding, err := c.gemini.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("query", query))
	}

	hits, err := c.index.Search(ctx, vectordb.CollectionSearchMemory, embedding, 1)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory collection")
	}
	if len(hits) == 0 {
		return nil, nil
	}

	nearest := hits[0]
	if nearest.Distance >= DistanceThreshold {
		logging.From(ctx).Debug("search memory miss",
			"query", query, "distance", nearest.Distance)
		return nil, nil
	}

	logging.From(ctx).Info("search memory hit",
		"query", query, "distance", nearest.Distance, "search_id", nearest.Metadata[metaSearchID])

	return &CachedResult{
		Summary:  nearest.Content,
		Metadata: metadataFromMap(nearest.Metadata),
	}, nil
}

// Store writes one new search memory entry. Entries are never updated or
// deleted afterwards.
func (c *Cache) Store(ctx context.Context, summary string, searchID model.SearchID, sessionID model.SessionID, sourceURLs []string) error {
	if len(summary) < 5 {
		logging.From(ctx).Debug("summary too short, storing placeholder", "search_id", searchID)
		summary = placeholderSummary
	}

	embedding, err := c.gemini.Embedding(ctx, summary)
	if err != nil {
		return goerr.Wrap(err, "failed to embed summary", goerr.V("search_id", searchID))
	}

	entry := model.SearchMemory{
		SummaryText: summary,
		Embedding:   embedding,
		Metadata: model.SearchMemoryMetadata{
			SearchID:   searchID,
			SessionID:  sessionID,
			SourceURLs: sourceURLs,
			Timestamp:  time.Now(),
		},
	}

	err = c.index.Insert(ctx, vectordb.CollectionSearchMemory, []vectordb.Doc{
		{
			ID:        string(searchID),
			Content:   entry.SummaryText,
			Metadata:  metadataToMap(entry.Metadata),
			Embedding: entry.Embedding,
		},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to insert search memory", goerr.V("search_id", searchID))
	}

	return nil
}

func metadataToMap(meta model.SearchMemoryMetadata) map[string]string {
	urls, _ := json.Marshal(meta.SourceURLs)
	return map[string]string{
		metaSearchID:   string(meta.SearchID),
		metaSessionID:  string(meta.SessionID),
		metaSourceURLs: string(urls),
		metaTimestamp:  meta.Timestamp.Format(time.RFC3339),
	}
}

func metadataFromMap(m map[string]string) model.SearchMemoryMetadata {
	meta := model.SearchMemoryMetadata{
		SearchID:  model.SearchID(m[metaSearchID]),
		SessionID: model.SessionID(m[metaSessionID]),
	}

	if urls := m[metaSourceURLs]; urls != "" {
		// Best effort: malformed metadata only costs the citation
		_ = json.Unmarshal([]byte(urls), &meta.SourceURLs)
	}
	if ts, err := time.Parse(time.RFC3339, m[metaTimestamp]); err == nil {
		meta.Timestamp = ts
	}

	return meta
}
