// Package graphstore persists entities, facts and conversation turns in a
// labeled-property graph and answers exact, structural lookups. Semantic
// similarity lives in the vector store; the two are joined by shared ids.
package graphstore

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
)

var (
	// ErrMissingEntity is returned when a fact write references an entity id
	// that is not present in the graph.
	ErrMissingEntity = errors.New("fact references a missing entity")
	// ErrNotFound is returned by lookups for entities that do not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrQueryUnsupported is returned by backends without a query language.
	ErrQueryUnsupported = errors.New("raw graph queries are not supported by this backend")
)

// ConnectedFact pairs a fact with its graph distance from the matched entity.
// Directly attached facts have hop count 0.
type ConnectedFact struct {
	Fact model.Fact
	Hops int
}

// EntityInfo is the result of an entity lookup: the node itself plus the
// facts reachable from it, nearest first.
type EntityInfo struct {
	Entity model.Entity
	Facts  []ConnectedFact
}

// GraphStore is the contract for the structured half of the memory layer.
type GraphStore interface {
	// UpsertEntity is idempotent by (normalized name, type); re-upserting
	// merges properties last-write-wins and returns the existing id.
	UpsertEntity(ctx context.Context, entity model.Entity) (string, error)
	// UpsertFact creates the fact node and edges to every related entity.
	// It fails with ErrMissingEntity if any referenced id is absent.
	UpsertFact(ctx context.Context, fact model.Fact) (string, error)
	// UpsertTurn appends a conversation turn, linked to its session node and
	// to any entity ids that exist; absent ids are skipped, not an error.
	UpsertTurn(ctx context.Context, turn model.ConversationTurn, entityIDs []string) error
	// QueryEntity looks up an entity by normalized name and returns it with
	// its connected facts. Returns ErrNotFound when no node matches.
	QueryEntity(ctx context.Context, name string) (*EntityInfo, error)
	// EntitiesByType lists entities carrying the given type.
	EntitiesByType(ctx context.Context, typ model.EntityType, limit int) ([]model.Entity, error)
	// FactByID fetches a single fact node.
	FactByID(ctx context.Context, id string) (*model.Fact, error)
	// ListFacts returns all fact nodes, used by the vector reconciliation sweep.
	ListFacts(ctx context.Context) ([]model.Fact, error)
	// Run passes a structured query straight through to the backend and
	// returns its rows in order. Not used for semantic ranking.
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
