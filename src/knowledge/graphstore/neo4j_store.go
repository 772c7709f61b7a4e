package graphstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	// AccessModeWrite opens a session with write access.
	AccessModeWrite Neo4jAccessMode = "write"
	// AccessModeRead opens a session with read access.
	AccessModeRead Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the Neo4j driver capabilities used by the store. This allows tests to
// provide lightweight fakes without depending on the real driver package (which is guarded behind
// an optional build tag).
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
	Keys() []string
}

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

// propPrefix namespaces dynamic entity properties so they cannot collide with
// the node's own attributes.
const propPrefix = "prop_"

// Neo4jStore persists the knowledge graph in Neo4j: entities and facts as
// nodes, MENTIONS edges between them, sessions containing conversation turns.
type Neo4jStore struct {
	driver   neo4jDriver
	database string
	nowFn    func() time.Time
	newID    func() string
}

var _ GraphStore = (*Neo4jStore)(nil)

// NewNeo4jStore constructs a graph store over the provided Neo4j driver.
func NewNeo4jStore(driver neo4jDriver, database string) (*Neo4jStore, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{driver: driver, database: database, nowFn: time.Now, newID: uuid.NewString}, nil
}

// InitializeSchema ensures graph constraints and indexes are present.
func (s *Neo4jStore) InitializeSchema(ctx context.Context) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	queries := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.key IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (f:Fact) REQUIRE f.id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (t:Turn) REQUIRE t.id IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (e:Entity) ON (e.normalized)",
		"CREATE INDEX IF NOT EXISTS FOR (e:Entity) ON (e.type)",
	}
	for _, query := range queries {
		res, runErr := session.Run(ctx, query, nil)
		if runErr != nil {
			return fmt.Errorf("neo4j schema query: %w", runErr)
		}
		if res != nil {
			_ = res.Close(ctx)
		}
	}
	return nil
}

func (s *Neo4jStore) UpsertEntity(ctx context.Context, entity model.Entity) (string, error) {
	if s.driver == nil {
		return "", ErrNeo4jUnavailable
	}
	if strings.TrimSpace(entity.Name) == "" {
		return "", errors.New("entity name is empty")
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return "", fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	props := make(map[string]any, len(entity.Properties))
	for k, v := range entity.Properties {
		props[propPrefix+k] = v.Scalar()
	}
	params := map[string]any{
		"key":        entity.Key(),
		"id":         s.newID(),
		"name":       entity.Name,
		"normalized": model.NormalizeName(entity.Name),
		"type":       string(entity.Type),
		"created_at": s.now().Format(time.RFC3339Nano),
		"props":      props,
	}
	result, err := session.Run(ctx, neo4jUpsertEntityCypher, params)
	if err != nil {
		return "", fmt.Errorf("neo4j upsert entity: %w", err)
	}
	defer result.Close(ctx)
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", err
		}
		return "", errors.New("neo4j upsert entity returned no row")
	}
	id, _ := result.Record().Get("id")
	return toString(id), nil
}

func (s *Neo4jStore) UpsertFact(ctx context.Context, fact model.Fact) (string, error) {
	if s.driver == nil {
		return "", ErrNeo4jUnavailable
	}
	if fact.ID == "" {
		fact.ID = s.newID()
	}
	createdAt := fact.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return "", fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	params := map[string]any{
		"id":           fact.ID,
		"statement":    fact.Statement,
		"source":       fact.Source,
		"created_at":   createdAt.UTC().Format(time.RFC3339Nano),
		"entity_ids":   fact.RelatedEntityIDs,
		"entity_count": len(fact.RelatedEntityIDs),
	}
	result, err := session.Run(ctx, neo4jUpsertFactCypher, params)
	if err != nil {
		return "", fmt.Errorf("neo4j upsert fact: %w", err)
	}
	defer result.Close(ctx)
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", err
		}
		// The write only proceeds when every referenced entity matched.
		return "", fmt.Errorf("%w: %s", ErrMissingEntity, strings.Join(fact.RelatedEntityIDs, ", "))
	}
	return fact.ID, nil
}

func (s *Neo4jStore) UpsertTurn(ctx context.Context, turn model.ConversationTurn, entityIDs []string) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	if turn.ID == "" {
		turn.ID = s.newID()
	}
	timestamp := turn.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	params := map[string]any{
		"id":         turn.ID,
		"session_id": turn.SessionID,
		"role":       string(turn.Role),
		"text":       turn.Text,
		"timestamp":  timestamp.UTC().Format(time.RFC3339Nano),
		"entity_ids": entityIDs,
	}
	result, err := session.Run(ctx, neo4jUpsertTurnCypher, params)
	if err != nil {
		return fmt.Errorf("neo4j upsert turn: %w", err)
	}
	if result != nil {
		_ = result.Close(ctx)
	}
	return nil
}

func (s *Neo4jStore) QueryEntity(ctx context.Context, name string) (*EntityInfo, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	normalized := model.NormalizeName(name)
	result, err := session.Run(ctx, neo4jQueryEntityCypher, map[string]any{"normalized": normalized})
	if err != nil {
		return nil, fmt.Errorf("neo4j query entity: %w", err)
	}
	if !result.Next(ctx) {
		_ = result.Close(ctx)
		if err := result.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	entity := mapEntityRecord(result.Record())
	_ = result.Close(ctx)

	info := &EntityInfo{Entity: entity}
	direct, err := s.collectFacts(ctx, session, neo4jDirectFactsCypher, entity.ID, 0)
	if err != nil {
		return nil, err
	}
	info.Facts = append(info.Facts, direct...)
	neighbors, err := s.collectFacts(ctx, session, neo4jNeighborFactsCypher, entity.ID, 1)
	if err != nil {
		return nil, err
	}
	info.Facts = append(info.Facts, neighbors...)
	return info, nil
}

func (s *Neo4jStore) collectFacts(ctx context.Context, session neo4jSession, query, entityID string, hops int) ([]ConnectedFact, error) {
	result, err := session.Run(ctx, query, map[string]any{"entity_id": entityID})
	if err != nil {
		return nil, fmt.Errorf("neo4j fact query: %w", err)
	}
	defer result.Close(ctx)
	var facts []ConnectedFact
	for result.Next(ctx) {
		facts = append(facts, ConnectedFact{Fact: mapFactRecord(result.Record()), Hops: hops})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Neo4jStore) EntitiesByType(ctx context.Context, typ model.EntityType, limit int) ([]model.Entity, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	if limit <= 0 {
		limit = 10
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, neo4jEntitiesByTypeCypher, map[string]any{"type": string(typ), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j entities by type: %w", err)
	}
	defer result.Close(ctx)
	var entities []model.Entity
	for result.Next(ctx) {
		entities = append(entities, mapEntityRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *Neo4jStore) FactByID(ctx context.Context, id string) (*model.Fact, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, neo4jFactByIDCypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neo4j fact by id: %w", err)
	}
	defer result.Close(ctx)
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fact %s", ErrNotFound, id)
	}
	fact := mapFactRecord(result.Record())
	return &fact, nil
}

func (s *Neo4jStore) ListFacts(ctx context.Context) ([]model.Fact, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, neo4jListFactsCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4j list facts: %w", err)
	}
	defer result.Close(ctx)
	var facts []model.Fact
	for result.Next(ctx) {
		facts = append(facts, mapFactRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

// Run passes a parameterized query straight through and returns its rows.
func (s *Neo4jStore) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j run: %w", err)
	}
	defer result.Close(ctx)
	var rows []map[string]any
	for result.Next(ctx) {
		rec := result.Record()
		row := make(map[string]any)
		for _, key := range rec.Keys() {
			if v, ok := rec.Get(key); ok {
				row[key] = v
			}
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

const (
	neo4jUpsertEntityCypher = `
MERGE (e:Entity {key: $key})
ON CREATE SET e.id = $id,
              e.name = $name,
              e.normalized = $normalized,
              e.type = $type,
              e.created_at = $created_at
SET e += $props
RETURN e.id AS id
`
	neo4jUpsertFactCypher = `
MATCH (e:Entity) WHERE e.id IN $entity_ids
WITH collect(e) AS ents
WHERE size(ents) = $entity_count
CREATE (f:Fact {id: $id, statement: $statement, source: $source, created_at: $created_at})
FOREACH (ent IN ents | CREATE (f)-[:MENTIONS]->(ent))
RETURN f.id AS id
`
	neo4jUpsertTurnCypher = `
MERGE (s:Session {id: $session_id})
CREATE (t:Turn {id: $id, session_id: $session_id, role: $role, text: $text, timestamp: $timestamp})
CREATE (s)-[:CONTAINS]->(t)
WITH t
OPTIONAL MATCH (e:Entity) WHERE e.id IN $entity_ids
FOREACH (ent IN CASE WHEN e IS NULL THEN [] ELSE [e] END | CREATE (t)-[:MENTIONS]->(ent))
`
	neo4jQueryEntityCypher = `
MATCH (e:Entity {normalized: $normalized})
RETURN e.id AS id, e.name AS name, e.type AS type, properties(e) AS props
ORDER BY e.created_at ASC
LIMIT 1
`
	neo4jDirectFactsCypher = `
MATCH (f:Fact)-[:MENTIONS]->(e:Entity {id: $entity_id})
RETURN f.id AS id, f.statement AS statement, f.source AS source, f.created_at AS created_at,
       [(f)-[:MENTIONS]->(x) | x.id] AS entity_ids
ORDER BY f.created_at DESC
`
	neo4jNeighborFactsCypher = `
MATCH (e:Entity {id: $entity_id})<-[:MENTIONS]-(:Fact)-[:MENTIONS]->(n:Entity)<-[:MENTIONS]-(f:Fact)
WHERE n.id <> $entity_id AND NOT (f)-[:MENTIONS]->(e)
RETURN DISTINCT f.id AS id, f.statement AS statement, f.source AS source, f.created_at AS created_at,
       [(f)-[:MENTIONS]->(x) | x.id] AS entity_ids
ORDER BY created_at DESC
`
	neo4jEntitiesByTypeCypher = `
MATCH (e:Entity {type: $type})
RETURN e.id AS id, e.name AS name, e.type AS type, properties(e) AS props
ORDER BY e.name ASC
LIMIT $limit
`
	neo4jFactByIDCypher = `
MATCH (f:Fact {id: $id})
RETURN f.id AS id, f.statement AS statement, f.source AS source, f.created_at AS created_at,
       [(f)-[:MENTIONS]->(x) | x.id] AS entity_ids
`
	neo4jListFactsCypher = `
MATCH (f:Fact)
RETURN f.id AS id, f.statement AS statement, f.source AS source, f.created_at AS created_at,
       [(f)-[:MENTIONS]->(x) | x.id] AS entity_ids
ORDER BY f.created_at ASC
`
)

func mapEntityRecord(rec neo4jRecord) model.Entity {
	var entity model.Entity
	if rec == nil {
		return entity
	}
	if v, ok := rec.Get("id"); ok {
		entity.ID = toString(v)
	}
	if v, ok := rec.Get("name"); ok {
		entity.Name = toString(v)
	}
	if v, ok := rec.Get("type"); ok {
		entity.Type = model.EntityType(toString(v))
	}
	if v, ok := rec.Get("props"); ok {
		if raw, ok := v.(map[string]any); ok {
			props := make(map[string]model.PropertyValue)
			for k, val := range raw {
				if !strings.HasPrefix(k, propPrefix) {
					continue
				}
				if pv, err := model.ScalarFromAny(val); err == nil {
					props[strings.TrimPrefix(k, propPrefix)] = pv
				}
			}
			if len(props) > 0 {
				entity.Properties = props
			}
		}
	}
	return entity
}

func mapFactRecord(rec neo4jRecord) model.Fact {
	var fact model.Fact
	if rec == nil {
		return fact
	}
	if v, ok := rec.Get("id"); ok {
		fact.ID = toString(v)
	}
	if v, ok := rec.Get("statement"); ok {
		fact.Statement = toString(v)
	}
	if v, ok := rec.Get("source"); ok {
		fact.Source = toString(v)
	}
	if v, ok := rec.Get("created_at"); ok {
		fact.CreatedAt = parseTime(toString(v))
	}
	if v, ok := rec.Get("entity_ids"); ok {
		if items, ok := v.([]any); ok {
			for _, item := range items {
				fact.RelatedEntityIDs = append(fact.RelatedEntityIDs, toString(item))
			}
		}
	}
	return fact
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}
