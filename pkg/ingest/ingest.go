package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"github.com/tandemlab/tandem/pkg/vectordb"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

// separators are tried in order when splitting a document. Markdown
// headings come first so that chunks follow the document structure.
var separators = []string{"\n## ", "\n### ", "\n\n", "\n", ". ", " "}

// Ingestor chunks documents, embeds each chunk and inserts them into the
// document collection of the vector index.
type Ingestor struct {
	index     vectordb.Index
	gemini    adapter.Gemini
	chunkSize int
	overlap   int
}

// Option configures an Ingestor
type Option func(*Ingestor)

// WithChunkSize overrides the maximum chunk length in bytes
func WithChunkSize(n int) Option {
	return func(x *Ingestor) {
		x.chunkSize = n
	}
}

// WithOverlap overrides the overlap used when a chunk must be hard-cut
func WithOverlap(n int) Option {
	return func(x *Ingestor) {
		x.overlap = n
	}
}

// New creates an Ingestor
func New(index vectordb.Index, gemini adapter.Gemini, options ...Option) *Ingestor {
	ingestor := &Ingestor{
		index:     index,
		gemini:    gemini,
		chunkSize: defaultChunkSize,
		overlap:   defaultOverlap,
	}
	for _, opt := range options {
		opt(ingestor)
	}
	return ingestor
}

// IngestText splits one document into chunks and inserts them under the
// given document name. Returns the number of chunks inserted.
func (x *Ingestor) IngestText(ctx context.Context, docName, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, goerr.New("document is empty", goerr.V("doc_name", docName))
	}

	chunks := x.split(text, separators)

	var docs []vectordb.Doc
	for i, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		embedding, err := x.gemini.Embedding(ctx, chunk)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to embed chunk",
				goerr.V("doc_name", docName), goerr.V("chunk_index", i))
		}

		hash := sha256.Sum256([]byte(chunk))
		docs = append(docs, vectordb.Doc{
			ID:      fmt.Sprintf("%s:%d", docName, i),
			Content: chunk,
			Metadata: map[string]string{
				"doc_name":    docName,
				"chunk_index": fmt.Sprintf("%d", i),
				"sha256":      hex.EncodeToString(hash[:]),
			},
			Embedding: embedding,
		})
	}

	if len(docs) == 0 {
		return 0, goerr.New("no chunks produced", goerr.V("doc_name", docName))
	}

	if err := x.index.Insert(ctx, vectordb.CollectionDocuments, docs); err != nil {
		return 0, goerr.Wrap(err, "failed to insert chunks", goerr.V("doc_name", docName))
	}

	logging.From(ctx).Info("document ingested", "doc_name", docName, "chunks", len(docs))
	return len(docs), nil
}

// IngestFile reads one file and ingests it under its base name
func (x *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read document", goerr.V("path", path))
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return x.IngestText(ctx, name, string(data))
}

// split recursively divides text along the separator hierarchy, then merges
// the pieces back into chunks of at most chunkSize bytes
func (x *Ingestor) split(text string, seps []string) []string {
	if len(text) <= x.chunkSize {
		return []string{text}
	}

	if len(seps) == 0 {
		return x.hardCut(text)
	}

	parts := strings.Split(text, seps[0])
	if len(parts) == 1 {
		return x.split(text, seps[1:])
	}

	var pieces []string
	for i, part := range parts {
		if i > 0 {
			// Keep the separator so headings stay with their section
			part = seps[0] + part
		}
		if len(part) > x.chunkSize {
			pieces = append(pieces, x.split(part, seps[1:])...)
		} else if part != "" {
			pieces = append(pieces, part)
		}
	}

	return x.merge(pieces)
}

// hardCut slices text at fixed offsets with overlap, the last resort when no
// separator fits
func (x *Ingestor) hardCut(text string) []string {
	step := x.chunkSize - x.overlap
	if step < 1 {
		step = x.chunkSize
	}

	var out []string
	for start := 0; start < len(text); start += step {
		end := start + x.chunkSize
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		out = append(out, text[start:end])
	}
	return out
}

func (x *Ingestor) merge(pieces []string) []string {
	var out []string
	var cur strings.Builder
	for _, piece := range pieces {
		if cur.Len() > 0 && cur.Len()+len(piece) > x.chunkSize {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(piece)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
