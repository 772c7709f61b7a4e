package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/embed"
)

// PostgresStore is a VectorStore over Postgres with the pgvector extension,
// for deployments that already run Postgres and want one database to operate.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder embed.Embedder
}

var _ VectorStore = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres and ensures the schema is in place.
func NewPostgresStore(ctx context.Context, connStr string, embedder embed.Embedder) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	store := &PostgresStore{pool: pool, embedder: embedder}
	if err := store.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_docs (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    metadata JSONB,
    embedding vector(768),
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS memory_docs_embedding_idx ON memory_docs USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

func (s *PostgresStore) createSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, id, text string, metadata map[string]string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("document id is empty")
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
                INSERT INTO memory_docs (id, content, metadata, embedding)
                VALUES ($1, $2, $3::jsonb, $4::vector)
                ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
        `, id, text, string(metaJSON), vectorLiteral(vec))
	if err != nil {
		return fmt.Errorf("postgres upsert %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, query string, limit int, filter map[string]string) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sql := `
        SELECT id, content, metadata::text, (embedding <=> $1::vector) AS distance
        FROM memory_docs`
	args := []any{vectorLiteral(vec)}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		sql += `
        WHERE metadata @> $2::jsonb`
		args = append(args, string(filterJSON))
	}
	sql += fmt.Sprintf(`
        ORDER BY embedding <=> $1::vector
        LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var metaText string
		if err := rows.Scan(&hit.ID, &hit.Text, &metaText, &hit.Distance); err != nil {
			return nil, err
		}
		if metaText != "" {
			_ = json.Unmarshal([]byte(metaText), &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM memory_docs WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memory_docs`).Scan(&count)
	return count, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
