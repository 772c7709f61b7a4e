// Package extract turns raw text into typed entities and atomic facts using a
// pluggable language model. Extraction is best-effort by contract: backend
// failures degrade to "nothing found" and never block a write.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
)

// DefaultSource attributes facts whose caller supplied no provenance.
const DefaultSource = "unspecified"

// EntityExtractor produces typed entities from raw text. Implementations
// must merge duplicates (same normalized name and type) before returning.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]model.Entity, error)
}

// FactExtractor splits text into atomic, independently verifiable statements
// with provenance.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, text, source string) ([]model.FactDraft, error)
}

const entityPrompt = `You are an AI assistant tasked with extracting entities from a conversation.
Entities are objects, people, organizations, concepts, or other named things that are mentioned in the text.

For each entity, identify:
1. The entity name
2. The entity type (Person, Organization, Project, Concept, Technology, Location, or Other)
3. Any properties or attributes mentioned about the entity

Output the entities as a JSON array like this:
[
  {"name": "Entity name", "type": "Entity type", "properties": {"property1": "value1"}}
]

If no entities are present, return an empty array: []

Conversation:
%s

Extracted entities (JSON format):`

const factPrompt = `You are a knowledge extraction system. Your task is to extract factual statements from the conversation.
Extract only clear, factual information that would be useful to remember for future reference.
Do not include opinions, speculations, or uncertain information.
Each statement must be atomic: never combine multiple unrelated claims into one.

For each fact, provide:
1. The factual statement in a clear, concise format
2. Any entities mentioned (people, organizations, concepts, etc.)
3. The source of the information if mentioned

Extract the facts as a JSON array like this:
[
  {"statement": "Factual statement 1", "entities": ["John Doe", "Acme Corp"], "source": "mentioned in conversation"}
]

If no clear facts are present, return an empty array: []

Conversation:
%s

Extracted facts (JSON format):`

// Extractor implements both extraction contracts on top of one LLM backend.
type Extractor struct {
	llm    LLM
	logger *charmlog.Logger
}

var (
	_ EntityExtractor = (*Extractor)(nil)
	_ FactExtractor   = (*Extractor)(nil)
)

// NewExtractor wires an extractor to the given backend. A nil backend is
// valid and extracts nothing.
func NewExtractor(llm LLM) *Extractor {
	return &Extractor{llm: llm, logger: charmlog.WithPrefix("extract")}
}

// WithLogger overrides the default logger.
func (x *Extractor) WithLogger(logger *charmlog.Logger) *Extractor {
	if logger != nil {
		x.logger = logger
	}
	return x
}

type entityWire struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type factWire struct {
	Statement string   `json:"statement"`
	Content   string   `json:"content"` // some models echo the older field name
	Entities  []string `json:"entities"`
	Source    string   `json:"source"`
}

// ExtractEntities asks the backend for entities mentioned in text. Backend
// and parse failures return an empty set, never an error.
func (x *Extractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if x == nil || x.llm == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	raw, err := x.llm.Complete(ctx, fmt.Sprintf(entityPrompt, text))
	if err != nil {
		x.logger.Debug("entity extraction failed", "err", err)
		return nil, nil
	}
	var wires []entityWire
	if err := json.Unmarshal([]byte(stripFences(raw)), &wires); err != nil {
		x.logger.Debug("entity extraction returned unparseable output", "err", err)
		return nil, nil
	}
	entities := make([]model.Entity, 0, len(wires))
	for _, w := range wires {
		if strings.TrimSpace(w.Name) == "" {
			continue
		}
		entities = append(entities, model.Entity{
			Name:       strings.TrimSpace(w.Name),
			Type:       model.ParseEntityType(w.Type),
			Properties: model.PropertiesFromAny(w.Properties),
		})
	}
	return model.DedupeEntities(entities), nil
}

// ExtractFacts asks the backend for atomic statements in text. Every draft
// carries a source: the caller's, the model's, or DefaultSource.
func (x *Extractor) ExtractFacts(ctx context.Context, text, source string) ([]model.FactDraft, error) {
	if x == nil || x.llm == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	raw, err := x.llm.Complete(ctx, fmt.Sprintf(factPrompt, text))
	if err != nil {
		x.logger.Debug("fact extraction failed", "err", err)
		return nil, nil
	}
	var wires []factWire
	if err := json.Unmarshal([]byte(stripFences(raw)), &wires); err != nil {
		x.logger.Debug("fact extraction returned unparseable output", "err", err)
		return nil, nil
	}
	drafts := make([]model.FactDraft, 0, len(wires))
	for _, w := range wires {
		statement := strings.TrimSpace(w.Statement)
		if statement == "" {
			statement = strings.TrimSpace(w.Content)
		}
		if statement == "" {
			continue
		}
		drafts = append(drafts, model.FactDraft{
			Statement:          statement,
			Source:             resolveSource(source, w.Source),
			RelatedEntityNames: trimAll(w.Entities),
		})
	}
	return drafts, nil
}

func resolveSource(caller, extracted string) string {
	if s := strings.TrimSpace(caller); s != "" {
		return s
	}
	if s := strings.TrimSpace(extracted); s != "" {
		return s
	}
	return DefaultSource
}

func trimAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if t := strings.TrimSpace(n); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stripFences removes markdown code fences that chat models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
