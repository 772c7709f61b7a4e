// Package config collects the environment knobs of the memory layer in one
// place so binaries and tests construct backends the same way.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds backend connection settings. Zero values fall back to local
// development defaults.
type Config struct {
	// Neo4jURI is the bolt endpoint of the graph database.
	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// ChromaPersistDir is where the embedded vector database stores its
	// segments. ChromaCollection names the document collection.
	ChromaPersistDir string
	ChromaCollection string

	// PostgresDSN switches the vector backend to Postgres/pgvector when set.
	PostgresDSN string

	// AutoExtractFacts distills facts out of stored conversation turns.
	AutoExtractFacts bool
}

// FromEnv reads the configuration, applying defaults for anything unset.
func FromEnv() Config {
	return Config{
		Neo4jURI:         envOr("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUsername:    envOr("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword:    envOr("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:    os.Getenv("NEO4J_DATABASE"),
		ChromaPersistDir: envOr("CHROMA_PERSIST_DIR", "./chroma_db"),
		ChromaCollection: envOr("CHROMA_COLLECTION", "memories"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		AutoExtractFacts: envBool("MEMORY_AUTO_EXTRACT_FACTS"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
