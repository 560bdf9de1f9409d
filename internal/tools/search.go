package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
)

// SearchToolName is the function name offered to the model.
const SearchToolName = "search_internet"

const defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// Result is one search hit, shaped for model consumption.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher is the internet search tool. A configured SearXNG instance is
// the primary backend; the DuckDuckGo HTML endpoint is the fallback when
// SearXNG is absent or failing.
type Searcher struct {
	searxngURL string
	ddgURL     string
	maxResults int
	client     *http.Client
	logger     log.Logger
}

// NewSearcher creates the search tool. searxngURL may be empty, which
// leaves only the DuckDuckGo fallback.
func NewSearcher(searxngURL string, maxResults int, logger log.Logger) *Searcher {
	return &Searcher{
		searxngURL: strings.TrimRight(searxngURL, "/"),
		ddgURL:     defaultDuckDuckGoURL,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Name implements Tool.
func (s *Searcher) Name() string { return SearchToolName }

// Schema implements Tool.
func (s *Searcher) Schema() provider.ToolSchema {
	return provider.ToolSchema{
		Name:        SearchToolName,
		Description: "Search the internet for current information. Use this when the user asks about recent events, facts you are unsure about, or anything that benefits from up-to-date sources.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Execute implements Tool. Malformed arguments or backend failures degrade
// to "[]" so the model sees an empty result set instead of an error.
func (s *Searcher) Execute(ctx context.Context, rawArgs string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil || args.Query == "" {
		s.logger.Warn("search called with unusable arguments", "raw", rawArgs, "error", err)
		return "[]"
	}

	results := s.Search(ctx, args.Query)

	out, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(out)
}

// Search runs the query against the primary backend and falls back to
// DuckDuckGo. It never fails; the worst outcome is an empty slice.
func (s *Searcher) Search(ctx context.Context, query string) []Result {
	if s.searxngURL != "" {
		results, err := s.searchSearXNG(ctx, query)
		if err == nil && len(results) > 0 {
			return results
		}
		if err != nil {
			s.logger.Warn("searxng search failed, falling back", "query", query, "error", err)
		}
	}

	results, err := s.searchDuckDuckGo(ctx, query)
	if err != nil {
		s.logger.Warn("duckduckgo search failed", "query", query, "error", err)
		return []Result{}
	}
	return results
}

func (s *Searcher) searchSearXNG(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s/search?q=%s&format=json", s.searxngURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode searxng response: %w", err)
	}

	results := make([]Result, 0, s.maxResults)
	for _, r := range body.Results {
		if len(results) == s.maxResults {
			break
		}
		results = append(results, Result{Title: r.Title, Snippet: r.Content, Link: r.URL})
	}
	return results, nil
}

func (s *Searcher) searchDuckDuckGo(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s?q=%s", s.ddgURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// The HTML endpoint rejects clients without a browser-ish user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo html: %w", err)
	}

	results := make([]Result, 0, s.maxResults)
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		anchor := sel.Find("a.result__a")
		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			return true
		}

		href, _ := anchor.Attr("href")
		results = append(results, Result{
			Title:   title,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
			Link:    resolveDuckDuckGoLink(href),
		})
		return len(results) < s.maxResults
	})
	return results, nil
}

// resolveDuckDuckGoLink unwraps the redirect URLs the HTML endpoint uses
// (//duckduckgo.com/l/?uddg=<target>) into the target URL.
func resolveDuckDuckGoLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
