package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/repository"
	"github.com/tandemlab/tandem/pkg/usecase/searchmem"
	"github.com/tandemlab/tandem/pkg/utils/logging"
)

const (
	defaultWebResults = 3
	summaryMaxLen     = 1000
)

// SearchSpecialist retrieves from the live web, consulting the semantic
// result cache first so that semantically repeated questions never reach
// the search engine twice. Every genuinely-new search leaves one audit row
// and one cache entry; both writes are best-effort.
type SearchSpecialist struct {
	web     adapter.WebSearch
	cache   *searchmem.Cache
	repo    repository.Repository
	results int
}

// NewSearch creates the web search specialist
func NewSearch(web adapter.WebSearch, cache *searchmem.Cache, repo repository.Repository) *SearchSpecialist {
	return &SearchSpecialist{
		web:     web,
		cache:   cache,
		repo:    repo,
		results: defaultWebResults,
	}
}

func (a *SearchSpecialist) ID() model.AgentID {
	return model.AgentSearchSpecialist
}

func (a *SearchSpecialist) Run(ctx context.Context, query string, sessionID model.SessionID) (*model.AgentResponse, error) {
	logger := logging.From(ctx)

	cached, err := a.cache.Lookup(ctx, query)
	if err != nil {
		// A broken cache must not block the live search path
		logger.Warn("search memory lookup failed, falling through to live search", "error", err)
	}
	if cached != nil {
		return &model.AgentResponse{
			AgentID:    a.ID(),
			Response:   formatCached(cached),
			Sources:    append([]string{"search_memory"}, cached.Metadata.SourceURLs...),
			Confidence: 0.7,
		}, nil
	}

	results, err := a.web.Search(ctx, query, a.results)
	if err != nil {
		return nil, goerr.Wrap(err, "web search failed", goerr.V("query", query))
	}

	if len(results) == 0 {
		return &model.AgentResponse{
			AgentID:    a.ID(),
			Response:   "No relevant results found on the internet.",
			Sources:    []string{"web_search"},
			Confidence: 0.7,
		}, nil
	}

	a.remember(ctx, query, sessionID, results)

	return &model.AgentResponse{
		AgentID:    a.ID(),
		Response:   formatResults(results),
		Sources:    append([]string{"web_search"}, collectURLs(results)...),
		Confidence: 0.7,
	}, nil
}

// remember logs the search to the audit history and seeds the semantic
// cache. Both writes are best-effort: a failure is logged and the answer is
// still served.
func (a *SearchSpecialist) remember(ctx context.Context, query string, sessionID model.SessionID, results []adapter.WebResult) {
	logger := logging.From(ctx)
	urls := collectURLs(results)
	summary := summarizeResults(results)

	history := &model.SearchHistory{
		ID:             model.NewSearchID(),
		Query:          query,
		ResultsSummary: summary,
		SourceURLs:     urls,
		SessionID:      sessionID,
		CreatedAt:      time.Now(),
	}

	if err := a.repo.PutSearchHistory(ctx, history); err != nil {
		logger.Warn("failed to record search history", "error", err, "search_id", history.ID)
		return
	}

	if err := a.cache.Store(ctx, summary, history.ID, sessionID, urls); err != nil {
		logger.Warn("failed to store search memory", "error", err, "search_id", history.ID)
	}
}

func formatCached(cached *searchmem.CachedResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Previous Search Summary: %s\n", cached.Summary)
	fmt.Fprintf(&sb, "Source URLs: %s\n", strings.Join(cached.Metadata.SourceURLs, ", "))
	fmt.Fprintf(&sb, "Timestamp: %s\n", cached.Metadata.Timestamp.Format(time.RFC3339))
	return sb.String()
}

func formatResults(results []adapter.WebResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Title: %s\n", r.Title)
		fmt.Fprintf(&sb, "URL: %s\n", r.URL)
		fmt.Fprintf(&sb, "Content: %s\n\n", r.Content)
	}
	return sb.String()
}

// summarizeResults builds the summary stored in the audit log and the
// semantic cache from the title and content lines, capped in length
func summarizeResults(results []adapter.WebResult) string {
	var lines []string
	for _, r := range results {
		lines = append(lines, "Title: "+r.Title, "Content: "+r.Content)
	}

	return truncate(strings.Join(lines, "\n"), summaryMaxLen)
}

// truncate caps s at max bytes, backing off to a rune boundary so the
// result stays valid UTF-8
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func collectURLs(results []adapter.WebResult) []string {
	seen := make(map[string]bool, len(results))
	var urls []string
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		urls = append(urls, r.URL)
	}
	return urls
}
