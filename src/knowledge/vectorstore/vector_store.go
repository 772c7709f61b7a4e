// Package vectorstore persists embeddings of memory content and answers
// approximate semantic queries. Exact, structural lookups live in the graph
// store; records in both stores share the same id.
package vectorstore

import (
	"context"
	"errors"
)

// DefaultSearchLimit bounds similarity queries when the caller passes no limit.
const DefaultSearchLimit = 5

// ErrEmptyQuery is returned when a similarity search has no query text.
var ErrEmptyQuery = errors.New("similarity query text is empty")

// SearchHit is one similarity match. Distance is 1 - cosine similarity, so
// lower is closer; results are ordered ascending.
type SearchHit struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float64
}

// VectorStore is the contract for the semantic half of the memory layer.
type VectorStore interface {
	// UpsertEmbedding embeds text and stores it under id, replacing any
	// previous document with the same id.
	UpsertEmbedding(ctx context.Context, id, text string, metadata map[string]string) error
	// SimilaritySearch returns up to limit hits nearest to the query text,
	// optionally restricted by exact-match metadata filters.
	SimilaritySearch(ctx context.Context, query string, limit int, filter map[string]string) ([]SearchHit, error)
	// Has reports whether a document with the given id is indexed.
	Has(ctx context.Context, id string) (bool, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
