package store

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/util"
	"github.com/avolkov/quaero/internal/worker"
	"golang.org/x/net/html"
)

const feedLimitKey = "feed"

// FeedClient queries the arXiv API (Atom over HTTP). Requests are paced
// by the shared limiter and checked against the host's robots.txt before
// the first call; arXiv asks clients to stay around one request per 3s.
type FeedClient struct {
	baseURL    string
	maxResults int
	userAgent  string
	httpClient *http.Client
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
}

// FeedClientConfig configures the live-feed client.
type FeedClientConfig struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	UserAgent  string
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// NewFeedClient creates the feed client.
func NewFeedClient(cfg FeedClientConfig, limiter *worker.Limiter) *FeedClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://export.arxiv.org/api/query"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 15
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &FeedClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxResults: maxResults,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
		},
		limiter: limiter,
		robots:  util.NewRobotsChecker(cfg.UserAgent, timeout),
	}
}

// Atom feed structures (http://www.w3.org/2005/Atom)
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// Search runs one feed query and returns an evidence item per entry
// (title plus abstract).
func (c *FeedClient) Search(ctx context.Context, query string) ([]model.EvidenceItem, error) {
	if query == "" {
		return nil, fmt.Errorf("empty feed query")
	}

	if allowed, _, _ := c.robots.CanFetch(ctx, c.baseURL); !allowed {
		return nil, fmt.Errorf("feed host disallows fetching via robots.txt")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, feedLimitKey); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", c.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	return parseAtomEntries(body)
}

// parseAtomEntries converts an Atom feed body into evidence items. The
// API signals errors as a single entry titled "Error"; those are skipped.
func parseAtomEntries(body []byte) ([]model.EvidenceItem, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}

	var items []model.EvidenceItem
	for i, entry := range feed.Entries {
		title := collapseSpace(stripMarkup(entry.Title))
		if strings.EqualFold(title, "error") {
			continue
		}

		id := entryID(entry.ID)
		if id == "" {
			continue
		}

		var b strings.Builder
		b.WriteString("Title: ")
		b.WriteString(title)
		if len(entry.Authors) > 0 {
			names := make([]string, 0, len(entry.Authors))
			for _, a := range entry.Authors {
				names = append(names, strings.TrimSpace(a.Name))
			}
			b.WriteString("\nAuthors: ")
			b.WriteString(strings.Join(names, ", "))
		}
		b.WriteString("\n\nAbstract: ")
		b.WriteString(collapseSpace(stripMarkup(entry.Summary)))

		items = append(items, model.EvidenceItem{
			SourceID:   id,
			SourceType: model.SourceLiveFeed,
			Excerpt:    b.String(),
			Locator:    model.Locator{Offset: i},
		})
	}
	return items, nil
}

// entryID derives a citable source ID from the entry's abs URL.
func entryID(rawID string) string {
	id := strings.TrimPrefix(rawID, "http://arxiv.org/abs/")
	id = strings.TrimPrefix(id, "https://arxiv.org/abs/")
	id = strings.TrimRight(id, "/")
	return strings.ReplaceAll(id, "/", "_")
}

// stripMarkup drops any HTML tags embedded in feed text, keeping the
// visible text content.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
