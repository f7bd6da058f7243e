package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/vectordb"
)

// NotFoundMarker is the fixed text the local specialist answers with when
// the document index has nothing relevant. The orchestrator's conflict
// heuristics key on this exact phrase.
const NotFoundMarker = "No relevant documents found in the internal knowledge base."

const defaultDocTopK = 5

// LocalSpecialist retrieves from the internal document index
type LocalSpecialist struct {
	index  vectordb.Index
	gemini adapter.Gemini
	topK   int
}

// NewLocal creates the internal document specialist
func NewLocal(index vectordb.Index, gemini adapter.Gemini) *LocalSpecialist {
	return &LocalSpecialist{
		index:  index,
		gemini: gemini,
		topK:   defaultDocTopK,
	}
}

func (a *LocalSpecialist) ID() model.AgentID {
	return model.AgentLocalSpecialist
}

func (a *LocalSpecialist) Run(ctx context.Context, query string, sessionID model.SessionID) (*model.AgentResponse, error) {
	embedding, err := a.gemini.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("query", query))
	}

	hits, err := a.index.Search(ctx, vectordb.CollectionDocuments, embedding, a.topK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search documents")
	}

	if len(hits) == 0 {
		return &model.AgentResponse{
			AgentID:    a.ID(),
			Response:   NotFoundMarker,
			Sources:    []string{"internal_docs"},
			Confidence: 0.8,
		}, nil
	}

	var sb strings.Builder
	for _, hit := range hits {
		docName := hit.Metadata["doc_name"]
		if docName == "" {
			docName = "Unknown"
		}
		fmt.Fprintf(&sb, "Document: %s\n", docName)
		fmt.Fprintf(&sb, "Content: %s\n", hit.Content)
		fmt.Fprintf(&sb, "Relevance Score: %.4f\n\n", hit.Distance)
	}

	return &model.AgentResponse{
		AgentID:    a.ID(),
		Response:   sb.String(),
		Sources:    []string{"internal_docs"},
		Confidence: 0.8,
	}, nil
}
