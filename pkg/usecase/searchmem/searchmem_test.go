package searchmem_test

import (
	"context"
	"iter"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/usecase/searchmem"
	"github.com/tandemlab/tandem/pkg/vectordb"
	"google.golang.org/genai"
)

// fixedEmbedder returns the same embedding for every input
type fixedEmbedder struct {
	vector []float32
}

func (m *fixedEmbedder) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, nil
}

func (m *fixedEmbedder) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {}
}

func (m *fixedEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	return m.vector, nil
}

// stubIndex returns canned hits regardless of the query vector
type stubIndex struct {
	hits     []vectordb.Hit
	inserted []vectordb.Doc
}

func (s *stubIndex) Search(ctx context.Context, collection vectordb.Collection, vector []float32, topK int) ([]vectordb.Hit, error) {
	return s.hits, nil
}

func (s *stubIndex) Insert(ctx context.Context, collection vectordb.Collection, docs []vectordb.Doc) error {
	s.inserted = append(s.inserted, docs...)
	return nil
}

func TestLookupEmptyIndexMisses(t *testing.T) {
	cache := searchmem.New(&stubIndex{}, &fixedEmbedder{vector: []float32{1, 0}})

	result, err := cache.Lookup(context.Background(), "anything")
	gt.NoError(t, err)
	gt.V(t, result).Nil()
}

func TestThresholdBoundary(t *testing.T) {
	testCases := []struct {
		name      string
		distance  float64
		expectHit bool
	}{
		{"exactly at threshold is a miss", searchmem.DistanceThreshold, false},
		{"marginally below threshold is a hit", searchmem.DistanceThreshold - 0.001, true},
		{"well below threshold is a hit", 0.0, true},
		{"above threshold is a miss", 0.9, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			index := &stubIndex{hits: []vectordb.Hit{{
				ID:       "m1",
				Content:  "cached summary",
				Distance: tc.distance,
				Metadata: map[string]string{"search_id": "m1", "source_urls": `["https://example.com"]`},
			}}}
			cache := searchmem.New(index, &fixedEmbedder{vector: []float32{1, 0}})

			result, err := cache.Lookup(context.Background(), "query")
			gt.NoError(t, err)
			if tc.expectHit {
				gt.V(t, result).NotNil()
				gt.Equal(t, result.Summary, "cached summary")
				gt.Equal(t, result.Metadata.SearchID, model.SearchID("m1"))
				gt.A(t, result.Metadata.SourceURLs).Length(1)
			} else {
				gt.V(t, result).Nil()
			}
		})
	}
}

func TestStoreThenLookupSameQuery(t *testing.T) {
	ctx := context.Background()
	index, err := vectordb.NewChromem("")
	gt.NoError(t, err)
	cache := searchmem.New(index, &fixedEmbedder{vector: []float32{0.3, 0.7, 0.2}})

	searchID := model.NewSearchID()
	gt.NoError(t, cache.Store(ctx, "regulation 30/2019 covers document numbering",
		searchID, "s1", []string{"https://example.com/reg30"}))

	// Same query text embeds to the same vector: distance 0, well under the
	// threshold
	result, err := cache.Lookup(ctx, "regulation 30/2019 covers document numbering")
	gt.NoError(t, err)
	gt.V(t, result).NotNil()
	gt.Equal(t, result.Summary, "regulation 30/2019 covers document numbering")
	gt.Equal(t, result.Metadata.SearchID, searchID)
	gt.Equal(t, result.Metadata.SessionID, model.SessionID("s1"))
	gt.A(t, result.Metadata.SourceURLs).Length(1)
}

func TestStoreSubstitutesPlaceholderForTinySummary(t *testing.T) {
	index := &stubIndex{}
	cache := searchmem.New(index, &fixedEmbedder{vector: []float32{1}})

	err := cache.Store(context.Background(), "meh", model.NewSearchID(), "s1", nil)
	gt.NoError(t, err)
	gt.A(t, index.inserted).Length(1)
	gt.Equal(t, index.inserted[0].Content, "No summary available.")
}
