package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ---------- Dummy (fallback) ----------
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding is deterministic and kept for tests/back-compat.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// MEMORY_EMBED_PROVIDER=openai|ollama
// MEMORY_EMBED_MODEL=<model string>
// If not set, it infers from available API keys/OLLAMA_HOST, else dummy.
// MEMORY_EMBED_CACHE_SIZE additionally wraps the provider in an LRU cache.
func AutoEmbedder() Embedder {
	return TryCacheEmbedder(autoEmbedder())
}

func autoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("MEMORY_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("MEMORY_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "":
		if os.Getenv("OPENAI_API_KEY") != "" {
			if e, err := NewOpenAIEmbedder(model); err == nil {
				return e
			}
		}
		if os.Getenv("OLLAMA_HOST") != "" {
			if e, err := NewOllamaEmbedder(model); err == nil {
				return e
			}
		}
	}

	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}
