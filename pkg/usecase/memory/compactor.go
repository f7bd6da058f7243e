package memory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/repository"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

var summarizePrompt = template.Must(template.New("summarize").Parse(summarizePromptRaw))

// Compactor maintains the bounded conversational memory of each session.
// It is the only component that mutates ContextRecords: a record stays in
// Window mode until the append that would exceed WindowLimit entries, then
// transitions to Summary mode for good; afterwards each overflow of History
// is folded into the rolling summary together with the prior summary.
type Compactor struct {
	repo   repository.Repository
	gemini adapter.Gemini
}

// New creates a new Compactor
func New(repo repository.Repository, gemini adapter.Gemini) *Compactor {
	return &Compactor{
		repo:   repo,
		gemini: gemini,
	}
}

// Get returns the context record for a session, or (nil, nil) when the
// session has none yet. A malformed stored blob is reported as an empty
// Window-mode record rather than an error.
func (c *Compactor) Get(ctx context.Context, id model.SessionID) (*model.ContextRecord, error) {
	blob, err := c.repo.GetContext(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load context record", goerr.V("session_id", id))
	}
	if blob == nil {
		return nil, nil
	}

	var record model.ContextRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		logging.From(ctx).Warn("malformed context record, treating as empty",
			"session_id", id, "error", err)
		return model.NewContextRecord(), nil
	}

	return &record, nil
}

// Append adds one (query, response) turn to the session context, applying
// de-duplication and the Window/Summary transitions. An entry whose
// (query, response) tuple is already visible is silently dropped.
//
// There is no concurrency control across callers: two simultaneous appends
// for the same session race on the blob and the last writer wins. Callers
// that expect concurrent turns on one session must serialize per-session.
func (c *Compactor) Append(ctx context.Context, id model.SessionID, query, response string) error {
	record, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		record = model.NewContextRecord()
	}

	entry := model.ContextEntry{
		Query:     query,
		Response:  response,
		Timestamp: time.Now(),
	}

	if record.Contains(entry) {
		logging.From(ctx).Debug("duplicate context entry, skipping append", "session_id", id)
		return nil
	}

	switch record.Mode {
	case model.ContextModeSummary:
		record.History = append(record.History, entry)
		if len(record.History) > model.WindowLimit {
			// Fold the overflowing history into the rolling summary,
			// feeding the prior summary back in as additional input
			summary, err := c.summarize(ctx, record.Summary, record.History[:len(record.History)-1])
			if err != nil {
				return goerr.Wrap(err, "failed to re-fold summary", goerr.V("session_id", id))
			}
			record.Summary = summary
			record.History = []model.ContextEntry{entry}
		}

	default:
		record.Entries = append(record.Entries, entry)
		if len(record.Entries) > model.WindowLimit {
			// The 11th entry triggers the irreversible transition to
			// Summary mode: everything but the newest entry is summarized
			summary, err := c.summarize(ctx, "", record.Entries[:len(record.Entries)-1])
			if err != nil {
				return goerr.Wrap(err, "failed to summarize window", goerr.V("session_id", id))
			}
			record.Mode = model.ContextModeSummary
			record.Summary = summary
			record.History = []model.ContextEntry{entry}
			record.Entries = nil
		}
	}

	blob, err := json.Marshal(record)
	if err != nil {
		return goerr.Wrap(err, "failed to serialize context record")
	}

	if err := c.repo.PutContext(ctx, id, blob); err != nil {
		return goerr.Wrap(err, "failed to persist context record", goerr.V("session_id", id))
	}

	return nil
}

// summarize folds the given entries (and the prior summary, when present)
// into a new summary text via one language model call
func (c *Compactor) summarize(ctx context.Context, priorSummary string, entries []model.ContextEntry) (string, error) {
	var transcript strings.Builder
	for _, e := range entries {
		transcript.WriteString("Question: " + e.Query + "\n")
		transcript.WriteString("Answer: " + e.Response + "\n")
	}

	var prompt bytes.Buffer
	err := summarizePrompt.Execute(&prompt, map[string]string{
		"Summary":    priorSummary,
		"Transcript": transcript.String(),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render summarize prompt")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an assistant managing conversational memory.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := c.gemini.GenerateContent(ctx, []*genai.Content{
		genai.NewContentFromText(prompt.String(), genai.RoleUser),
	}, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	summary := adapter.ResponseText(resp)
	if summary == "" {
		return "", goerr.New("empty summary generated")
	}

	return summary, nil
}
