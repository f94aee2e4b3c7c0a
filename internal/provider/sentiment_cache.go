package provider

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"stock-signal-lab/internal/cache"
)

type sentimentSource interface {
	DailyScores(ctx context.Context, query string, days int) (map[string]float64, error)
}

type sentimentRedis interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CachedSentimentSource puts a short redis TTL in front of a sentiment
// feed so repeated builds within a session do not refetch it. Cache
// failures fall through to the underlying source.
type CachedSentimentSource struct {
	label  string
	source sentimentSource
	redis  sentimentRedis
}

func NewCachedSentimentSource(label string, source sentimentSource, redisClient sentimentRedis) *CachedSentimentSource {
	return &CachedSentimentSource{label: label, source: source, redis: redisClient}
}

func (c *CachedSentimentSource) DailyScores(ctx context.Context, query string, days int) (map[string]float64, error) {
	key := cache.SentimentKey(c.label, query)

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			var scores map[string]float64
			if jsonErr := json.Unmarshal([]byte(raw), &scores); jsonErr == nil {
				return scores, nil
			}
			log.Printf("bad cached sentiment for %s: dropping entry", key)
		} else if err != redis.Nil {
			log.Printf("redis cache read error: %v", err)
		}
	}

	scores, err := c.source.DailyScores(ctx, query, days)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if payload, err := json.Marshal(scores); err == nil {
			if err := c.redis.Set(ctx, key, payload, cache.SentimentTTL).Err(); err != nil {
				log.Printf("redis cache write error: %v", err)
			}
		}
	}
	return scores, nil
}
