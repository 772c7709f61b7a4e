//go:build !neo4j

package main

import (
	"context"

	charmlog "github.com/charmbracelet/log"

	knowledge "github.com/Protocol-Lattice/agent-memory/src/knowledge"
)

// newGraphStore runs on the in-memory graph. Build with -tags neo4j to
// connect to the Neo4j server named by NEO4J_URI instead.
func newGraphStore(_ context.Context, _ knowledge.Config, logger *charmlog.Logger) (knowledge.GraphStore, error) {
	logger.Info("using in-memory graph store")
	return knowledge.NewInMemoryStore(), nil
}
