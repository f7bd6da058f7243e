package orchestrate

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/agent"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/conflict.md
var conflictPromptRaw string

var conflictPrompt = template.Must(template.New("conflict").Parse(conflictPromptRaw))

// recencyTerms mark a query as asking for up-to-date information, in which
// case the live search result outranks the knowledge base
var recencyTerms = []string{"latest", "newest", "current", "recent", "today", "this year"}

const (
	reasonInternalMiss  = "Internal knowledge base did not contain relevant information, prioritizing external search results."
	reasonRecency       = "Query indicates need for latest information, prioritizing external search results."
	reasonCombined      = "Both sources provide relevant information, combining insights."
	reasonInternalOnly  = "Only the internal knowledge base produced an answer."
	reasonExternalOnly  = "Only the external search produced an answer."
	reasonNothingUsable = "All specialist agents failed, no sources available."
)

// reconcile derives the reasoning for how the two specialist findings relate.
// ConflictResolved is true only when both specialists actually answered.
// The deterministic rules cover the common cases; a language model rationale
// is attempted only when both sources hold substantive, potentially
// disagreeing content.
func (o *Orchestrator) reconcile(ctx context.Context, query string, internal, external *model.AgentResponse) (string, bool) {
	switch {
	case internal == nil && external == nil:
		return reasonNothingUsable, false
	case external == nil:
		return reasonInternalOnly, false
	case internal == nil:
		return reasonExternalOnly, false
	}

	if strings.Contains(internal.Response, agent.NotFoundMarker) {
		return reasonInternalMiss, true
	}

	lowered := strings.ToLower(query)
	if containsAny(lowered, recencyTerms) {
		return reasonRecency, true
	}

	rationale, err := o.conflictRationale(ctx, query, internal.Response, external.Response)
	if err != nil {
		logging.From(ctx).Warn("conflict rationale call failed, using default reasoning", "error", err)
		return reasonCombined, true
	}
	return rationale, true
}

func (o *Orchestrator) conflictRationale(ctx context.Context, query, internal, external string) (string, error) {
	var prompt bytes.Buffer
	err := conflictPrompt.Execute(&prompt, map[string]string{
		"Query":    query,
		"Internal": internal,
		"External": external,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render conflict prompt")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := o.gemini.GenerateContent(ctx, []*genai.Content{
		genai.NewContentFromText(prompt.String(), genai.RoleUser),
	}, config)
	if err != nil {
		return "", goerr.Wrap(err, "conflict resolution call failed")
	}

	rationale := strings.TrimSpace(adapter.ResponseText(resp))
	if rationale == "" {
		return "", goerr.New("empty conflict rationale")
	}
	return rationale, nil
}
