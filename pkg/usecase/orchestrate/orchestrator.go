package orchestrate

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/agent"
	"github.com/tandemlab/tandem/pkg/cache"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/usecase/memory"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/synthesize.md
var synthesizePromptRaw string

var synthesizePrompt = template.Must(template.New("synthesize").Parse(synthesizePromptRaw))

const (
	// snapshotTTL bounds how long an in-flight turn snapshot stays observable
	snapshotTTL = time.Hour

	// contextTail is how many recent turns feed the synthesis prompt
	contextTail = 3
)

// Input carries the collaborators of an Orchestrator
type Input struct {
	Gemini    adapter.Gemini
	Analyzer  Analyzer
	Local     agent.Specialist
	Search    agent.Specialist
	Compactor *memory.Compactor
	Snapshots cache.Store
}

// Orchestrator runs one conversational turn end to end: classify the query,
// fan out to both specialists in parallel, reconcile their findings,
// synthesize the final answer and persist the turn into session memory.
type Orchestrator struct {
	gemini    adapter.Gemini
	analyzer  Analyzer
	local     agent.Specialist
	search    agent.Specialist
	compactor *memory.Compactor
	snapshots cache.Store
}

// New creates an Orchestrator. Snapshots may be nil, in which case turn
// state snapshots are skipped.
func New(input Input) *Orchestrator {
	return &Orchestrator{
		gemini:    input.Gemini,
		analyzer:  input.Analyzer,
		local:     input.Local,
		search:    input.Search,
		compactor: input.Compactor,
		snapshots: input.Snapshots,
	}
}

// Result is the outcome of one turn, including the session it ran under
// so that callers see server-generated session IDs.
type Result struct {
	SessionID model.SessionID
	model.OrchestrationResult
}

// Invoke runs one turn and returns the complete answer
func (o *Orchestrator) Invoke(ctx context.Context, sessionID model.SessionID, query string) (*Result, error) {
	return o.run(ctx, sessionID, query, nil)
}

// StreamInvoke runs one turn, delivering the final answer incrementally
// through onToken as the model produces it. The returned result carries the
// fully accumulated answer.
func (o *Orchestrator) StreamInvoke(ctx context.Context, sessionID model.SessionID, query string, onToken func(text string)) (*Result, error) {
	return o.run(ctx, sessionID, query, onToken)
}

func (o *Orchestrator) run(ctx context.Context, sessionID model.SessionID, query string, onToken func(string)) (*Result, error) {
	if query == "" {
		return nil, goerr.New("query must not be empty")
	}
	if sessionID == "" {
		sessionID = model.NewSessionID()
	}

	logger := logging.From(ctx).With("session_id", sessionID)
	ctx = logging.With(ctx, logger)

	class, err := o.analyzer.Analyze(ctx, query)
	if err != nil {
		// The chain already defaulted the class; the turn proceeds
		logger.Warn("query classification failed, treating as both", "error", err)
		class = model.QueryClassBoth
	}
	logger.Info("query classified", "class", class)
	o.snapshot(ctx, sessionID, query, class, "classified")

	internal, external := o.fanOut(ctx, query, sessionID)
	o.snapshot(ctx, sessionID, query, class, "specialists_done")

	reasoning, conflictResolved := o.reconcile(ctx, query, internal, external)
	logger.Info("findings reconciled", "reasoning", reasoning, "conflict_resolved", conflictResolved)

	result := &Result{SessionID: sessionID}
	result.Reasoning = reasoning
	result.ConflictResolved = conflictResolved
	result.Sources = mergeSources(internal, external)

	// Even with no specialist findings the turn is still answered from the
	// model's general knowledge. A synthesis failure ends the request.
	final, err := o.synthesize(ctx, sessionID, query, class, reasoning, internal, external, onToken)
	if err != nil {
		return nil, err
	}
	result.FinalResponse = final

	// Memory persistence is best-effort: the user still gets the answer
	if err := o.compactor.Append(ctx, sessionID, query, result.FinalResponse); err != nil {
		logger.Warn("failed to persist turn into session memory", "error", err)
	}

	o.snapshot(ctx, sessionID, query, class, "completed")
	return result, nil
}

// fanOut runs both specialists concurrently. They are fully independent:
// a failure or cancellation of one never affects the other, it only turns
// that specialist's finding into nil.
func (o *Orchestrator) fanOut(ctx context.Context, query string, sessionID model.SessionID) (internal, external *model.AgentResponse) {
	logger := logging.From(ctx)

	var wg sync.WaitGroup
	for _, sp := range []struct {
		specialist agent.Specialist
		out        **model.AgentResponse
	}{
		{o.local, &internal},
		{o.search, &external},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := sp.specialist.Run(ctx, query, sessionID)
			if err != nil {
				logger.Warn("specialist failed", "agent", sp.specialist.ID(), "error", err)
				return
			}
			*sp.out = resp
		}()
	}
	wg.Wait()

	return internal, external
}

func (o *Orchestrator) synthesize(ctx context.Context, sessionID model.SessionID, query string, class model.QueryClass, reasoning string, internal, external *model.AgentResponse, onToken func(string)) (string, error) {
	contextText, err := o.conversationContext(ctx, sessionID)
	if err != nil {
		logging.From(ctx).Warn("failed to load conversation context, continuing without", "error", err)
		contextText = "(no prior conversation)"
	}

	var prompt bytes.Buffer
	err = synthesizePrompt.Execute(&prompt, map[string]string{
		"Query":    query,
		"Context":  contextText,
		"Findings": formatFindings(class, reasoning, internal, external),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render synthesis prompt")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt.String(), genai.RoleUser),
	}

	if onToken == nil {
		resp, err := o.gemini.GenerateContent(ctx, contents, nil)
		if err != nil {
			return "", goerr.Wrap(err, "synthesis call failed")
		}
		final := adapter.ResponseText(resp)
		if final == "" {
			return "", goerr.New("empty synthesis response")
		}
		return final, nil
	}

	var sb strings.Builder
	for resp, err := range o.gemini.GenerateStream(ctx, contents, nil) {
		if err != nil {
			return "", goerr.Wrap(err, "synthesis stream failed")
		}
		chunk := adapter.ResponseText(resp)
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		onToken(chunk)
	}

	if sb.Len() == 0 {
		return "", goerr.New("empty synthesis response")
	}
	return sb.String(), nil
}

// conversationContext renders the prior turns of the session for the
// synthesis prompt: the rolling summary when present, plus the newest turns
func (o *Orchestrator) conversationContext(ctx context.Context, sessionID model.SessionID) (string, error) {
	record, err := o.compactor.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "(no prior conversation)", nil
	}

	var sb strings.Builder
	if record.Mode == model.ContextModeSummary && record.Summary != "" {
		sb.WriteString("Summary of earlier conversation:\n")
		sb.WriteString(record.Summary)
		sb.WriteString("\n\n")
	}

	tail := record.Tail(contextTail)
	if len(tail) == 0 && sb.Len() == 0 {
		return "(no prior conversation)", nil
	}
	for _, e := range tail {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", e.Query, e.Response)
	}

	return sb.String(), nil
}

func formatFindings(class model.QueryClass, reasoning string, internal, external *model.AgentResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query classification: %s\n", class)
	fmt.Fprintf(&sb, "Reconciliation: %s\n\n", reasoning)

	present := false
	for _, resp := range []*model.AgentResponse{internal, external} {
		if resp == nil {
			continue
		}
		present = true
		fmt.Fprintf(&sb, "=== %s (confidence %.2f) ===\n%s\n\n", resp.AgentID, resp.Confidence, resp.Response)
	}
	if !present {
		sb.WriteString("(no specialist findings available; answer from general knowledge and say so)\n")
	}
	return sb.String()
}

func mergeSources(responses ...*model.AgentResponse) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		for _, src := range resp.Sources {
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			merged = append(merged, src)
		}
	}
	return merged
}

// stateSnapshot is the observable progress of an in-flight turn
type stateSnapshot struct {
	Stage     string           `json:"stage"`
	Query     string           `json:"query"`
	Class     model.QueryClass `json:"class"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// snapshot publishes the turn progress under graph_state:<session_id>.
// Snapshots are diagnostics only, so failures are swallowed.
func (o *Orchestrator) snapshot(ctx context.Context, sessionID model.SessionID, query string, class model.QueryClass, stage string) {
	if o.snapshots == nil {
		return
	}

	blob, err := json.Marshal(stateSnapshot{
		Stage:     stage,
		Query:     query,
		Class:     class,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return
	}

	o.snapshots.Set("graph_state:"+string(sessionID), blob, snapshotTTL)
}
