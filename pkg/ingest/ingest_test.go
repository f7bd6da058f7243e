package ingest_test

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/tandemlab/tandem/pkg/ingest"
	"github.com/tandemlab/tandem/pkg/vectordb"
	"google.golang.org/genai"
)

type fixedEmbedder struct{}

func (m *fixedEmbedder) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, nil
}

func (m *fixedEmbedder) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {}
}

func (m *fixedEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// captureIndex records inserted documents for inspection
type captureIndex struct {
	docs []vectordb.Doc
}

func (c *captureIndex) Search(ctx context.Context, collection vectordb.Collection, vector []float32, topK int) ([]vectordb.Hit, error) {
	return nil, nil
}

func (c *captureIndex) Insert(ctx context.Context, collection vectordb.Collection, docs []vectordb.Doc) error {
	c.docs = append(c.docs, docs...)
	return nil
}

func TestIngestTextSingleChunk(t *testing.T) {
	index := &captureIndex{}
	ingestor := ingest.New(index, &fixedEmbedder{})

	n, err := ingestor.IngestText(context.Background(), "retention", "The retention period is seven years.")
	gt.NoError(t, err)
	gt.Equal(t, n, 1)
	gt.A(t, index.docs).Length(1)
	gt.Equal(t, index.docs[0].Metadata["doc_name"], "retention")
	gt.Equal(t, index.docs[0].Metadata["chunk_index"], "0")
	gt.Equal(t, len(index.docs[0].Metadata["sha256"]), 64)
	gt.A(t, index.docs[0].Embedding).Length(2)
}

func TestIngestSplitsLongDocument(t *testing.T) {
	var doc strings.Builder
	doc.WriteString("# Policy handbook\n\nIntroduction paragraph about the handbook.\n")
	doc.WriteString("\n## Retention\nThe retention period is seven years for all records.\n")
	doc.WriteString("\n## Signatures\nDigital signatures are accepted since 2019 under Regulation No. 11.\n")

	index := &captureIndex{}
	ingestor := ingest.New(index, &fixedEmbedder{}, ingest.WithChunkSize(80), ingest.WithOverlap(10))

	n, err := ingestor.IngestText(context.Background(), "handbook", doc.String())
	gt.NoError(t, err)
	gt.Number(t, n).Greater(1)

	var all strings.Builder
	for _, d := range index.docs {
		gt.Number(t, len(d.Content)).Less(81)
		all.WriteString(d.Content)
		all.WriteString("\n")
	}

	// No section content is lost in the split
	gt.S(t, all.String()).Contains("seven years")
	gt.S(t, all.String()).Contains("Regulation No. 11")
}

func TestIngestEmptyDocument(t *testing.T) {
	ingestor := ingest.New(&captureIndex{}, &fixedEmbedder{})
	_, err := ingestor.IngestText(context.Background(), "empty", "   \n  ")
	gt.Error(t, err)
}

func TestIngestFileUsesBaseName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leave-policy.md")
	gt.NoError(t, os.WriteFile(path, []byte("Annual leave is 12 days."), 0o600))

	index := &captureIndex{}
	ingestor := ingest.New(index, &fixedEmbedder{})

	n, err := ingestor.IngestFile(context.Background(), path)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)
	gt.Equal(t, index.docs[0].Metadata["doc_name"], "leave-policy")
}

func TestIngestManifest(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("Document A content."), 0o600))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("Document B content."), 0o600))

	manifest := "documents:\n  - name: alpha\n    path: a.md\n  - path: b.md\n"
	manifestPath := filepath.Join(dir, "manifest.yml")
	gt.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o600))

	index := &captureIndex{}
	ingestor := ingest.New(index, &fixedEmbedder{})

	total, err := ingestor.IngestManifest(context.Background(), manifestPath)
	gt.NoError(t, err)
	gt.Equal(t, total, 2)

	names := map[string]bool{}
	for _, d := range index.docs {
		names[d.Metadata["doc_name"]] = true
	}
	gt.True(t, names["alpha"])
	gt.True(t, names["b"])
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ingest.LoadManifest(filepath.Join(dir, "missing.yml"))
	gt.Error(t, err)

	empty := filepath.Join(dir, "empty.yml")
	gt.NoError(t, os.WriteFile(empty, []byte("documents: []\n"), 0o600))
	_, err = ingest.LoadManifest(empty)
	gt.Error(t, err)

	noPath := filepath.Join(dir, "nopath.yml")
	gt.NoError(t, os.WriteFile(noPath, []byte("documents:\n  - name: x\n"), 0o600))
	_, err = ingest.LoadManifest(noPath)
	gt.Error(t, err)
}
