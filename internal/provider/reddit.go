package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	redditBaseURL     = "https://www.reddit.com"
	defaultRedditUA   = "stock-signal-lab/1.0"
	defaultRedditSize = 40
)

// SocialSentimentProvider scores recent reddit posts mentioning a
// ticker into daily sentiment.
type SocialSentimentProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
}

func NewSocialSentimentProvider(tracer trace.Tracer) *SocialSentimentProvider {
	return &SocialSentimentProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: defaultRedditUA,
		tracer:    tracer,
	}
}

func (p *SocialSentimentProvider) DailyScores(ctx context.Context, query string, days int) (map[string]float64, error) {
	items, err := p.FetchSearch(ctx, query, defaultRedditSize)
	if err != nil {
		return nil, err
	}
	return dailyScores(items, days, time.Now()), nil
}

func (p *SocialSentimentProvider) FetchSearch(ctx context.Context, query string, limit int) ([]ContentItem, error) {
	_, span := p.tracer.Start(ctx, "reddit.fetch-search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = defaultRedditSize
	}
	if limit > 100 {
		limit = 100
	}

	base := strings.TrimRight(p.baseURL, "/")
	u := fmt.Sprintf("%s/search.json?q=%s&sort=new&limit=%d", base, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reddit API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			Children []struct {
				Data struct {
					ID         string  `json:"id"`
					Title      string  `json:"title"`
					SelfText   string  `json:"selftext"`
					Author     string  `json:"author"`
					CreatedUTC float64 `json:"created_utc"`
					Permalink  string  `json:"permalink"`
					URL        string  `json:"url"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reddit response: %w", err)
	}

	items := make([]ContentItem, 0, len(payload.Data.Children))
	for _, row := range payload.Data.Children {
		data := row.Data
		if strings.TrimSpace(data.ID) == "" || strings.TrimSpace(data.Title) == "" {
			continue
		}
		itemURL := strings.TrimSpace(data.URL)
		if permalink := strings.TrimSpace(data.Permalink); permalink != "" {
			itemURL = base + permalink
		}
		items = append(items, ContentItem{
			Source:       "reddit",
			SourceItemID: data.ID,
			Title:        sanitizeText(data.Title, 300),
			URL:          itemURL,
			Excerpt:      sanitizeText(data.SelfText, 420),
			Author:       sanitizeText(data.Author, 120),
			PublishedAt:  time.Unix(int64(data.CreatedUTC), 0).UTC(),
		})
	}

	return items, nil
}
