package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/embed"
)

const (
	// DefaultPersistDir is where the embedded database writes its segments.
	DefaultPersistDir = "./chroma_db"
	// DefaultCollection holds all memory documents unless configured otherwise.
	DefaultCollection = "memories"
)

// ChromemStore is a VectorStore over chromem-go, an embedded pure-Go vector
// database. It needs no external service, which makes it the default backend.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) a persistent database under persistDir.
func NewChromemStore(persistDir, collection string, embedder embed.Embedder) (*ChromemStore, error) {
	if strings.TrimSpace(persistDir) == "" {
		persistDir = DefaultPersistDir
	}
	db, err := chromem.NewPersistentDB(persistDir, false)
	if err != nil {
		return nil, fmt.Errorf("chromem open %s: %w", persistDir, err)
	}
	return newChromemStore(db, collection, embedder)
}

// NewEphemeralChromemStore keeps everything in process memory. Used by tests
// and short-lived tools.
func NewEphemeralChromemStore(collection string, embedder embed.Embedder) (*ChromemStore, error) {
	return newChromemStore(chromem.NewDB(), collection, embedder)
}

func newChromemStore(db *chromem.DB, collection string, embedder embed.Embedder) (*ChromemStore, error) {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	col, err := db.GetOrCreateCollection(collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("chromem collection %s: %w", collection, err)
	}
	return &ChromemStore{db: db, collection: col}, nil
}

func (s *ChromemStore) UpsertEmbedding(ctx context.Context, id, text string, metadata map[string]string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("document id is empty")
	}
	doc := chromem.Document{ID: id, Content: text, Metadata: metadata}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem add document %s: %w", id, err)
	}
	return nil
}

func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, limit int, filter map[string]string) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	// chromem rejects limits above the collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}
	results, err := s.collection.Query(ctx, query, limit, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: r.Metadata,
			Distance: 1 - float64(r.Similarity),
		})
	}
	return hits, nil
}

func (s *ChromemStore) Has(ctx context.Context, id string) (bool, error) {
	_, err := s.collection.GetByID(ctx, id)
	if err != nil {
		// chromem exposes no sentinel for a missing document; anything
		// else is a real failure and must not trigger a re-embed.
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("chromem get %s: %w", id, err)
	}
	return true, nil
}

func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

func (s *ChromemStore) Ping(context.Context) error { return nil }

// Close is a no-op: the persistent database flushes on every write.
func (s *ChromemStore) Close(context.Context) error { return nil }
