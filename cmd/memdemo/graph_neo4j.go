//go:build neo4j

package main

import (
	"context"
	"fmt"

	charmlog "github.com/charmbracelet/log"
	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	knowledge "github.com/Protocol-Lattice/agent-memory/src/knowledge"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/graphstore"
)

// newGraphStore connects to the Neo4j server from the configuration and
// ensures constraints and indexes exist.
func newGraphStore(ctx context.Context, cfg knowledge.Config, logger *charmlog.Logger) (knowledge.GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUsername, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	store, err := graphstore.NewNeo4jStore(graphstore.WrapNeo4jDriver(driver), cfg.Neo4jDatabase)
	if err != nil {
		return nil, err
	}
	if err := store.InitializeSchema(ctx); err != nil {
		return nil, err
	}
	logger.Info("using neo4j graph store", "uri", cfg.Neo4jURI)
	return store, nil
}
