package embed

import (
	"context"
	"testing"
	"time"
)

func TestDummyEmbeddingIsDeterministic(t *testing.T) {
	a := DummyEmbedding("the same text")
	b := DummyEmbedding("the same text")
	if len(a) != 768 || len(b) != 768 {
		t.Fatalf("expected 768 dimensions, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
	c := DummyEmbedding("different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts must not collide")
	}
}

func TestAutoEmbedderFallsBackToDummy(t *testing.T) {
	t.Setenv("MEMORY_EMBED_PROVIDER", "")
	t.Setenv("MEMORY_EMBED_CACHE_SIZE", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected DummyEmbedder without provider configuration")
	}
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	return DummyEmbedding(text), nil
}

func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 8, time.Minute)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "alice works at acme")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	second, err := cached.Embed(ctx, "alice works at acme")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one backend call, got %d", inner.calls)
	}
	if len(first) != len(second) {
		t.Fatalf("cached vector differs: %d vs %d dims", len(first), len(second))
	}
	if cached.Len() != 1 {
		t.Fatalf("expected one cache entry, got %d", cached.Len())
	}
}

func TestCachedEmbedderEvictsAtCapacity(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 2, time.Minute)
	ctx := context.Background()

	cached.Embed(ctx, "one")
	cached.Embed(ctx, "two")
	cached.Embed(ctx, "three")
	if cached.Len() != 2 {
		t.Fatalf("expected capacity enforced, got %d entries", cached.Len())
	}
	// "one" was evicted; embedding it again hits the backend.
	cached.Embed(ctx, "one")
	if inner.calls != 4 {
		t.Fatalf("expected 4 backend calls, got %d", inner.calls)
	}
}

func TestTryCacheEmbedderRequiresEnv(t *testing.T) {
	t.Setenv("MEMORY_EMBED_CACHE_SIZE", "")
	inner := &countingEmbedder{}
	if wrapped := TryCacheEmbedder(inner); wrapped != Embedder(inner) {
		t.Fatal("expected passthrough without cache configuration")
	}
	t.Setenv("MEMORY_EMBED_CACHE_SIZE", "16")
	if _, ok := TryCacheEmbedder(inner).(*CachedEmbedder); !ok {
		t.Fatal("expected CachedEmbedder when size is set")
	}
}
