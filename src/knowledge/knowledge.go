// Package knowledge is the top-level facade of the memory layer. It re-exports
// the manager, both store contracts and the model types so that most callers
// import a single package.
package knowledge

import (
	configpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/config"
	embedpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/embed"
	extractpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/extract"
	graphpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/graphstore"
	managerpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/manager"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
	vectorpkg "github.com/Protocol-Lattice/agent-memory/src/knowledge/vectorstore"
)

type (
	Manager           = managerpkg.Manager
	Options           = managerpkg.Options
	PartialWriteError = managerpkg.PartialWriteError

	Entity           = model.Entity
	EntityType       = model.EntityType
	PropertyValue    = model.PropertyValue
	Fact             = model.Fact
	FactDraft        = model.FactDraft
	ConversationTurn = model.ConversationTurn
	Role             = model.Role
	MemoryRecord     = model.MemoryRecord
	Kind             = model.Kind
	SourceStore      = model.SourceStore

	GraphStore    = graphpkg.GraphStore
	EntityInfo    = graphpkg.EntityInfo
	ConnectedFact = graphpkg.ConnectedFact
	InMemoryStore = graphpkg.InMemoryStore
	Neo4jStore    = graphpkg.Neo4jStore

	VectorStore   = vectorpkg.VectorStore
	SearchHit     = vectorpkg.SearchHit
	ChromemStore  = vectorpkg.ChromemStore
	PostgresStore = vectorpkg.PostgresStore

	Embedder        = embedpkg.Embedder
	DummyEmbedder   = embedpkg.DummyEmbedder
	EntityExtractor = extractpkg.EntityExtractor
	FactExtractor   = extractpkg.FactExtractor
	Extractor       = extractpkg.Extractor

	Config = configpkg.Config
)

const (
	EntityPerson       = model.EntityPerson
	EntityOrganization = model.EntityOrganization
	EntityProject      = model.EntityProject
	EntityConcept      = model.EntityConcept
	EntityTechnology   = model.EntityTechnology
	EntityLocation     = model.EntityLocation
	EntityOther        = model.EntityOther

	RoleUser      = model.RoleUser
	RoleAssistant = model.RoleAssistant
	RoleSystem    = model.RoleSystem

	KindFact         = model.KindFact
	KindConversation = model.KindConversation
	KindEntity       = model.KindEntity

	SourceGraph  = model.SourceGraph
	SourceVector = model.SourceVector
	SourceBoth   = model.SourceBoth
)

var (
	ErrBackendUnavailable = managerpkg.ErrBackendUnavailable
	ErrMissingEntity      = graphpkg.ErrMissingEntity
	ErrNotFound           = graphpkg.ErrNotFound
	ErrQueryUnsupported   = graphpkg.ErrQueryUnsupported

	NewManager     = managerpkg.NewManager
	DefaultOptions = managerpkg.DefaultOptions

	NewInMemoryStore         = graphpkg.NewInMemoryStore
	NewNeo4jStore            = graphpkg.NewNeo4jStore
	NewChromemStore          = vectorpkg.NewChromemStore
	NewEphemeralChromemStore = vectorpkg.NewEphemeralChromemStore
	NewPostgresStore         = vectorpkg.NewPostgresStore

	AutoEmbedder = embedpkg.AutoEmbedder
	NewExtractor = extractpkg.NewExtractor
	AutoLLM      = extractpkg.AutoLLM

	FromEnv = configpkg.FromEnv
)
