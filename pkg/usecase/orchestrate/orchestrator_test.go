package orchestrate_test

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/agent"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/repository"
	"github.com/tandemlab/tandem/pkg/usecase/memory"
	"github.com/tandemlab/tandem/pkg/usecase/orchestrate"
	"github.com/tandemlab/tandem/pkg/usecase/searchmem"
	"github.com/tandemlab/tandem/pkg/vectordb"
	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

// scriptedGemini dispatches on the prompt text so the one client backs
// summarization, conflict resolution and synthesis at once
type scriptedGemini struct {
	mu         sync.Mutex
	synthCalls int
}

func (g *scriptedGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prompt := contents[0].Parts[0].Text
	switch {
	case strings.Contains(prompt, "Answer with exactly one word"):
		return textResponse("both"), nil
	case strings.Contains(prompt, "senior knowledge engineer"):
		return textResponse("rolling summary of the conversation"), nil
	case strings.Contains(prompt, "Resolve any contradiction"):
		return textResponse("The external source is more recent and should be preferred."), nil
	default:
		g.synthCalls++
		return textResponse(fmt.Sprintf("final answer %d", g.synthCalls)), nil
	}
}

func (g *scriptedGemini) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(textResponse("final "), nil) {
			return
		}
		yield(textResponse("answer"), nil)
	}
}

func (g *scriptedGemini) Embedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubWeb struct {
	mu      sync.Mutex
	results []adapter.WebResult
	calls   int
}

func (s *stubWeb) Search(ctx context.Context, query string, limit int) ([]adapter.WebResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.results, nil
}

type failingSpecialist struct {
	id model.AgentID
}

func (f *failingSpecialist) ID() model.AgentID {
	return f.id
}

func (f *failingSpecialist) Run(ctx context.Context, query string, sessionID model.SessionID) (*model.AgentResponse, error) {
	return nil, goerr.New("specialist down")
}

type mapStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{m: make(map[string][]byte)}
}

func (s *mapStore) Set(key string, value []byte, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return true
}

func (s *mapStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

type harness struct {
	orchestrator *orchestrate.Orchestrator
	compactor    *memory.Compactor
	gemini       *scriptedGemini
	web          *stubWeb
	snapshots    *mapStore
}

func newHarness(t *testing.T, docs []vectordb.Doc) *harness {
	t.Helper()
	ctx := context.Background()

	gemini := &scriptedGemini{}
	index, err := vectordb.NewChromem("")
	gt.NoError(t, err)
	if len(docs) > 0 {
		gt.NoError(t, index.Insert(ctx, vectordb.CollectionDocuments, docs))
	}

	repo := repository.NewMemory()
	compactor := memory.New(repo, gemini)
	web := &stubWeb{results: []adapter.WebResult{
		{Title: "Regulation update 2026", URL: "https://example.com/update", Content: "signatures are now digital"},
	}}
	snapshots := newMapStore()

	orchestrator := orchestrate.New(orchestrate.Input{
		Gemini:    gemini,
		Analyzer:  orchestrate.NewHeuristicAnalyzer(),
		Local:     agent.NewLocal(index, gemini),
		Search:    agent.NewSearch(web, searchmem.New(index, gemini), repo),
		Compactor: compactor,
		Snapshots: snapshots,
	})

	return &harness{
		orchestrator: orchestrator,
		compactor:    compactor,
		gemini:       gemini,
		web:          web,
		snapshots:    snapshots,
	}
}

func TestInvokeCombinesBothSources(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []vectordb.Doc{
		{ID: "d1", Content: "the retention period is seven years", Metadata: map[string]string{"doc_name": "retention.md"}, Embedding: []float32{1, 0}},
	})

	result, err := h.orchestrator.Invoke(ctx, "s1", "How long is the retention period?")
	gt.NoError(t, err)
	gt.Equal(t, result.SessionID, model.SessionID("s1"))
	gt.S(t, result.FinalResponse).Contains("final answer")
	gt.True(t, result.ConflictResolved)
	gt.A(t, result.Sources).Longer(1)

	// The turn landed in session memory with the synthesized answer
	record, err := h.compactor.Get(ctx, "s1")
	gt.NoError(t, err)
	gt.V(t, record).NotNil()
	gt.A(t, record.Entries).Length(1)
	gt.Equal(t, record.Entries[0].Response, result.FinalResponse)

	// Progress snapshots were published for the session
	_, ok := h.snapshots.Get("graph_state:s1")
	gt.True(t, ok)
}

func TestInvokeGeneratesSessionID(t *testing.T) {
	h := newHarness(t, nil)

	result, err := h.orchestrator.Invoke(context.Background(), "", "anything")
	gt.NoError(t, err)
	gt.S(t, string(result.SessionID)).NotContains(" ")
	gt.True(t, result.SessionID != "")
}

func TestInvokeRejectsEmptyQuery(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orchestrator.Invoke(context.Background(), "s1", "")
	gt.Error(t, err)
}

func TestInvokeLocalFailureStillAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	gemini := h.gemini
	index, err := vectordb.NewChromem("")
	gt.NoError(t, err)
	repo := repository.NewMemory()
	orchestrator := orchestrate.New(orchestrate.Input{
		Gemini:    gemini,
		Analyzer:  orchestrate.NewHeuristicAnalyzer(),
		Local:     &failingSpecialist{id: model.AgentLocalSpecialist},
		Search:    agent.NewSearch(h.web, searchmem.New(index, gemini), repo),
		Compactor: memory.New(repo, gemini),
	})

	result, err := orchestrator.Invoke(ctx, "s1", "anything")
	gt.NoError(t, err)
	gt.False(t, result.ConflictResolved)
	gt.S(t, result.Reasoning).Contains("Only the external search")
	gt.S(t, result.FinalResponse).Contains("final answer")
}

func TestInvokeBothSpecialistsFail(t *testing.T) {
	gemini := &scriptedGemini{}
	repo := repository.NewMemory()
	orchestrator := orchestrate.New(orchestrate.Input{
		Gemini:    gemini,
		Analyzer:  orchestrate.NewHeuristicAnalyzer(),
		Local:     &failingSpecialist{id: model.AgentLocalSpecialist},
		Search:    &failingSpecialist{id: model.AgentSearchSpecialist},
		Compactor: memory.New(repo, gemini),
	})

	// The turn is still answered from general knowledge
	result, err := orchestrator.Invoke(context.Background(), "s1", "anything")
	gt.NoError(t, err)
	gt.False(t, result.ConflictResolved)
	gt.S(t, result.FinalResponse).Contains("final answer")
	gt.A(t, result.Sources).Length(0)
	gt.Equal(t, gemini.synthCalls, 1)
}

func TestInvokePrefersExternalWhenInternalMisses(t *testing.T) {
	// Empty document index makes the local specialist answer with its
	// not-found marker, which resolves the conflict deterministically
	h := newHarness(t, nil)

	result, err := h.orchestrator.Invoke(context.Background(), "s1", "anything")
	gt.NoError(t, err)
	gt.True(t, result.ConflictResolved)
	gt.S(t, result.Reasoning).Contains("prioritizing external search results")
}

func TestInvokeRecencyQueryPrefersExternal(t *testing.T) {
	h := newHarness(t, []vectordb.Doc{
		{ID: "d1", Content: "old regulation text", Metadata: map[string]string{"doc_name": "old.md"}, Embedding: []float32{1, 0}},
	})

	result, err := h.orchestrator.Invoke(context.Background(), "s1", "what is the latest regulation?")
	gt.NoError(t, err)
	gt.S(t, result.Reasoning).Contains("latest information")
}

func TestStreamInvokeDeliversTokens(t *testing.T) {
	h := newHarness(t, nil)

	var tokens []string
	result, err := h.orchestrator.StreamInvoke(context.Background(), "s1", "anything", func(text string) {
		tokens = append(tokens, text)
	})
	gt.NoError(t, err)
	gt.A(t, tokens).Length(2)
	gt.Equal(t, result.FinalResponse, "final answer")
}

func TestElevenTurnSessionCompacts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	for i := 0; i < 11; i++ {
		_, err := h.orchestrator.Invoke(ctx, "s1", fmt.Sprintf("question %d", i))
		gt.NoError(t, err)
	}

	record, err := h.compactor.Get(ctx, "s1")
	gt.NoError(t, err)
	gt.Equal(t, record.Mode, model.ContextModeSummary)
	gt.S(t, record.Summary).Contains("rolling summary")
	gt.A(t, record.History).Length(1)
	gt.Equal(t, record.History[0].Query, "question 10")
}
