package model

import (
	"time"

	"github.com/google/uuid"
)

type SearchID string

// NewSearchID generates a new unique SearchID
func NewSearchID() SearchID {
	return SearchID(uuid.New().String())
}

// SearchHistory is one row of the append-only web search audit log.
// Rows are never mutated after insertion.
type SearchHistory struct {
	ID             SearchID
	Query          string
	ResultsSummary string
	SourceURLs     []string
	SessionID      SessionID
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// SearchMemoryMetadata is attached to every search memory entry for citation
type SearchMemoryMetadata struct {
	SearchID   SearchID  `json:"search_id"`
	SessionID  SessionID `json:"session_id"`
	SourceURLs []string  `json:"source_urls"`
	Timestamp  time.Time `json:"timestamp"`
}

// SearchMemory is a similarity-indexed record of a past external search.
// Exactly one entry is written per genuinely-new search; entries are never
// updated or deleted.
type SearchMemory struct {
	SummaryText string
	Embedding   []float32
	Metadata    SearchMemoryMetadata
}
