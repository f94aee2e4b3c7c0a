package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type sentimentSourceStub struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *sentimentSourceStub) DailyScores(ctx context.Context, query string, days int) (map[string]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

type fakeSentimentRedis struct {
	store map[string]string
	sets  int
}

func newFakeSentimentRedis() *fakeSentimentRedis {
	return &fakeSentimentRedis{store: make(map[string]string)}
}

func (f *fakeSentimentRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := f.store[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeSentimentRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.store[key] = string(value.([]byte))
	f.sets++
	return redis.NewStatusResult("OK", nil)
}

func TestCachedSentimentSourceMissThenHit(t *testing.T) {
	stub := &sentimentSourceStub{scores: map[string]float64{"2026-03-09": 0.4}}
	rc := newFakeSentimentRedis()
	cached := NewCachedSentimentSource("news", stub, rc)

	scores, err := cached.DailyScores(context.Background(), "AAPL", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores["2026-03-09"] != 0.4 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if stub.calls != 1 || rc.sets != 1 {
		t.Fatalf("expected one fetch and one cache write, got %d/%d", stub.calls, rc.sets)
	}

	scores, err = cached.DailyScores(context.Background(), "AAPL", 7)
	if err != nil {
		t.Fatalf("unexpected error on hit: %v", err)
	}
	if scores["2026-03-09"] != 0.4 {
		t.Fatalf("unexpected cached scores %v", scores)
	}
	if stub.calls != 1 {
		t.Fatalf("cache hit should not refetch, got %d calls", stub.calls)
	}
}

func TestCachedSentimentSourcePropagatesErrors(t *testing.T) {
	stub := &sentimentSourceStub{err: errors.New("feed down")}
	cached := NewCachedSentimentSource("social", stub, newFakeSentimentRedis())

	if _, err := cached.DailyScores(context.Background(), "AAPL", 7); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestCachedSentimentSourceNilRedis(t *testing.T) {
	stub := &sentimentSourceStub{scores: map[string]float64{"2026-03-09": -0.2}}
	cached := NewCachedSentimentSource("news", stub, nil)

	scores, err := cached.DailyScores(context.Background(), "AAPL", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores["2026-03-09"] != -0.2 {
		t.Fatalf("unexpected scores %v", scores)
	}
}
