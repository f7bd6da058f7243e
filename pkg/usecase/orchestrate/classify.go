package orchestrate

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/classify.md
var classifyPromptRaw string

var classifyPrompt = template.Must(template.New("classify").Parse(classifyPromptRaw))

// Analyzer decides which knowledge sources a query needs. The result is
// advisory: both specialists run regardless of the classification.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (model.QueryClass, error)
}

// RetryPolicy bounds retries of one analyzer before moving on to the next
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// AnalyzerChain tries analyzers in priority order, each under the retry
// policy, and returns the first successful classification.
type AnalyzerChain struct {
	analyzers []Analyzer
	policy    RetryPolicy
}

// NewAnalyzerChain creates a chain over the given analyzers
func NewAnalyzerChain(policy RetryPolicy, analyzers ...Analyzer) *AnalyzerChain {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &AnalyzerChain{
		analyzers: analyzers,
		policy:    policy,
	}
}

func (c *AnalyzerChain) Analyze(ctx context.Context, query string) (model.QueryClass, error) {
	var lastErr error
	for _, analyzer := range c.analyzers {
		for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
			if attempt > 0 && c.policy.Delay > 0 {
				select {
				case <-time.After(c.policy.Delay):
				case <-ctx.Done():
					return model.QueryClassBoth, goerr.Wrap(ctx.Err(), "classification canceled")
				}
			}

			class, err := analyzer.Analyze(ctx, query)
			if err == nil {
				err = class.Validate()
			}
			if err == nil {
				return class, nil
			}
			lastErr = err
			logging.From(ctx).Debug("analyzer attempt failed",
				"attempt", attempt+1, "error", err)
		}
	}

	return model.QueryClassBoth, goerr.Wrap(lastErr, "all analyzers failed")
}

// GeminiAnalyzer classifies via one language model call
type GeminiAnalyzer struct {
	gemini adapter.Gemini
}

// NewGeminiAnalyzer creates an LLM-backed analyzer
func NewGeminiAnalyzer(gemini adapter.Gemini) *GeminiAnalyzer {
	return &GeminiAnalyzer{gemini: gemini}
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, query string) (model.QueryClass, error) {
	var prompt bytes.Buffer
	if err := classifyPrompt.Execute(&prompt, map[string]string{"Query": query}); err != nil {
		return model.QueryClassBoth, goerr.Wrap(err, "failed to render classify prompt")
	}

	resp, err := a.gemini.GenerateContent(ctx, []*genai.Content{
		genai.NewContentFromText(prompt.String(), genai.RoleUser),
	}, nil)
	if err != nil {
		return model.QueryClassBoth, goerr.Wrap(err, "classification call failed")
	}

	return parseClassification(adapter.ResponseText(resp))
}

// parseClassification extracts a query class from free-form model output.
// Mentioning both source kinds counts as "both".
func parseClassification(text string) (model.QueryClass, error) {
	lowered := strings.ToLower(text)
	hasInternal := strings.Contains(lowered, "internal")
	hasExternal := strings.Contains(lowered, "external")

	switch {
	case strings.Contains(lowered, "both") || (hasInternal && hasExternal):
		return model.QueryClassBoth, nil
	case hasInternal:
		return model.QueryClassInternal, nil
	case hasExternal:
		return model.QueryClassExternal, nil
	default:
		return model.QueryClassBoth, goerr.New("no explicit classification in model output",
			goerr.V("output", text))
	}
}

// internalTerms and externalTerms drive the deterministic fallback analyzer
var (
	internalTerms = []string{"policy", "procedure", "regulation", "guideline", "internal", "sop"}
	externalTerms = []string{"latest", "current", "news", "today", "recent", "new"}
)

// HeuristicAnalyzer is the deterministic fallback. It never fails, so a
// chain ending with it always produces a classification.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer creates the keyword-based analyzer
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

func (a *HeuristicAnalyzer) Analyze(ctx context.Context, query string) (model.QueryClass, error) {
	lowered := strings.ToLower(query)
	internal := containsAny(lowered, internalTerms)
	external := containsAny(lowered, externalTerms)

	switch {
	case internal && !external:
		return model.QueryClassInternal, nil
	case external && !internal:
		return model.QueryClassExternal, nil
	default:
		return model.QueryClassBoth, nil
	}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
