package provider

import (
	"strings"
	"time"
)

var (
	bullishTerms = []string{"beat", "upgrade", "rally", "surge", "record", "growth", "buy", "bullish", "outperform", "soar", "gain", "breakout", "strong", "raise"}
	bearishTerms = []string{"miss", "downgrade", "selloff", "plunge", "lawsuit", "recall", "bearish", "underperform", "drop", "fall", "loss", "cut", "warn", "crash"}
)

// HeuristicSentiment scores a headline plus excerpt into [-1, 1] from
// keyword counts. Empty text is neutral.
func HeuristicSentiment(title, excerpt string) (float64, string) {
	text := strings.ToLower(strings.TrimSpace(title + " " + excerpt))
	if text == "" {
		return 0, "neutral"
	}

	bullCount := countMatches(text, bullishTerms)
	bearCount := countMatches(text, bearishTerms)

	score := clamp(float64(bullCount-bearCount)/float64(bullCount+bearCount+1), -1, 1)
	label := "neutral"
	if score > 0.2 {
		label = "bullish"
	} else if score < -0.2 {
		label = "bearish"
	}
	return score, label
}

// dailyScores averages item sentiment per calendar day over the last
// `days` days, keyed by "2006-01-02" in UTC.
func dailyScores(items []ContentItem, days int, now time.Time) map[string]float64 {
	if days <= 0 {
		days = 7
	}
	cutoff := now.UTC().AddDate(0, 0, -days)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, item := range items {
		if item.PublishedAt.Before(cutoff) {
			continue
		}
		score, _ := HeuristicSentiment(item.Title, item.Excerpt)
		day := item.PublishedAt.UTC().Format("2006-01-02")
		sums[day] += score
		counts[day]++
	}

	out := make(map[string]float64, len(sums))
	for day, sum := range sums {
		out[day] = sum / float64(counts[day])
	}
	return out
}

func countMatches(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		n += strings.Count(text, term)
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
