package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const defaultNewsFeedTemplate = "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"

// NewsSentimentProvider turns financial-news RSS headlines into daily
// sentiment scores.
type NewsSentimentProvider struct {
	client       *http.Client
	feedTemplate string
	tracer       trace.Tracer
}

func NewNewsSentimentProvider(tracer trace.Tracer) *NewsSentimentProvider {
	return &NewsSentimentProvider{
		client:       &http.Client{Timeout: 20 * time.Second},
		feedTemplate: defaultNewsFeedTemplate,
		tracer:       tracer,
	}
}

// DailyScores fetches the ticker's headline feed and averages heuristic
// sentiment per day over the lookback window.
func (p *NewsSentimentProvider) DailyScores(ctx context.Context, query string, days int) (map[string]float64, error) {
	items, err := p.FetchFeed(ctx, fmt.Sprintf(p.feedTemplate, url.QueryEscape(strings.ToUpper(strings.TrimSpace(query)))), 40)
	if err != nil {
		return nil, err
	}
	return dailyScores(items, days, time.Now()), nil
}

func (p *NewsSentimentProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]ContentItem, error) {
	_, span := p.tracer.Start(ctx, "news.fetch-feed")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if maxItems <= 0 {
		maxItems = 40
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rss fetch error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rss struct {
		Channel struct {
			Title string `xml:"title"`
			Items []struct {
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
				GUID        string `xml:"guid"`
				PubDate     string `xml:"pubDate"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("decode rss payload: %w", err)
	}

	items := make([]ContentItem, 0, len(rss.Channel.Items))
	for i, row := range rss.Channel.Items {
		if i >= maxItems {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		publishedAt := parseRSSDate(row.PubDate)
		if publishedAt.IsZero() {
			publishedAt = time.Now().UTC()
		}
		sourceID := sanitizeText(row.GUID, 250)
		if sourceID == "" {
			sourceID = sanitizeText(row.Link, 250)
		}

		items = append(items, ContentItem{
			Source:       "news",
			SourceItemID: sourceID,
			Title:        title,
			URL:          sanitizeText(row.Link, 500),
			Excerpt:      sanitizeText(htmlStrip(row.Description), 420),
			PublishedAt:  publishedAt.UTC(),
		})
	}

	return items, nil
}

func parseRSSDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func htmlStrip(in string) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch r {
		case '<':
			inside = true
			continue
		case '>':
			inside = false
			continue
		}
		if !inside {
			b.WriteRune(r)
		}
	}
	return b.String()
}
