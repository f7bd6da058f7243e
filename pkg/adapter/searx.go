package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// WebResult is one hit returned by the web search service
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearch is the external web search boundary
type WebSearch interface {
	Search(ctx context.Context, query string, limit int) ([]WebResult, error)
}

// SearxClient queries a SearXNG instance via its JSON API
type SearxClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

type SearxOption func(*SearxClient)

func WithLanguage(lang string) SearxOption {
	return func(s *SearxClient) {
		s.language = lang
	}
}

func WithHTTPClient(client *http.Client) SearxOption {
	return func(s *SearxClient) {
		s.httpClient = client
	}
}

func NewSearx(baseURL string, opts ...SearxOption) *SearxClient {
	s := &SearxClient{
		baseURL:  baseURL,
		language: "en",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type searxResponse struct {
	Results []WebResult `json:"results"`
}

func (s *SearxClient) Search(ctx context.Context, query string, limit int) ([]WebResult, error) {
	endpoint, err := url.Parse(s.baseURL + "/search")
	if err != nil {
		return nil, goerr.Wrap(err, "invalid searxng base URL", goerr.V("base_url", s.baseURL))
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", s.language)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call searxng", goerr.V("query", query))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected searxng status",
			goerr.V("status", strconv.Itoa(resp.StatusCode)),
			goerr.V("query", query))
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, goerr.Wrap(err, "failed to decode searxng response")
	}

	results := body.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}
