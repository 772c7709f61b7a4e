package model

import (
	"sort"
	"strings"
	"time"
)

// EntityType classifies the named things the extractors recognise.
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityProject      EntityType = "Project"
	EntityConcept      EntityType = "Concept"
	EntityTechnology   EntityType = "Technology"
	EntityLocation     EntityType = "Location"
	EntityOther        EntityType = "Other"
)

var knownEntityTypes = map[string]EntityType{
	"person":       EntityPerson,
	"organization": EntityOrganization,
	"project":      EntityProject,
	"concept":      EntityConcept,
	"technology":   EntityTechnology,
	"location":     EntityLocation,
	"other":        EntityOther,
}

// ParseEntityType maps free-form extractor output onto the closed enum.
// Unknown types collapse to EntityOther rather than failing the extraction.
func ParseEntityType(s string) EntityType {
	if t, ok := knownEntityTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return EntityOther
}

// Entity is a named, typed thing of interest stored as a graph node.
// Identity is (normalized name, type); ID is assigned by the graph store.
type Entity struct {
	ID         string                   `json:"id,omitempty"`
	Name       string                   `json:"name"`
	Type       EntityType               `json:"type"`
	Properties map[string]PropertyValue `json:"properties,omitempty"`
}

// NormalizeName lowercases, trims and collapses inner whitespace so that
// "OpenManus" and " openmanus " resolve to the same node.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Key returns the identity key shared by both stores and the extractors.
func (e Entity) Key() string {
	return NormalizeName(e.Name) + "␟" + string(e.Type)
}

// MergeProperties applies last-write-wins per property key.
func (e *Entity) MergeProperties(props map[string]PropertyValue) {
	if len(props) == 0 {
		return
	}
	if e.Properties == nil {
		e.Properties = make(map[string]PropertyValue, len(props))
	}
	for k, v := range props {
		e.Properties[k] = v
	}
}

// DedupeEntities merges duplicates within one extraction call by identity key,
// folding properties last-write-wins in input order.
func DedupeEntities(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}
	byKey := make(map[string]int, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, ent := range entities {
		if strings.TrimSpace(ent.Name) == "" {
			continue
		}
		key := ent.Key()
		if idx, ok := byKey[key]; ok {
			out[idx].MergeProperties(ent.Properties)
			continue
		}
		byKey[key] = len(out)
		out = append(out, ent)
	}
	return out
}

// FactDraft is the extractor's output before the graph store assigns ids.
type FactDraft struct {
	Statement          string   `json:"statement"`
	Source             string   `json:"source"`
	RelatedEntityNames []string `json:"related_entity_names,omitempty"`
}

// Fact is an atomic factual statement. Immutable after creation; corrections
// are new facts. The same ID keys the statement in both stores.
type Fact struct {
	ID               string    `json:"id"`
	Statement        string    `json:"statement"`
	Source           string    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`
	RelatedEntityIDs []string  `json:"related_entity_ids,omitempty"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is an append-only message within a session.
type ConversationTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Kind tags the origin of a retrieved memory record.
type Kind string

const (
	KindFact         Kind = "fact"
	KindConversation Kind = "conversation"
	KindEntity       Kind = "entity"
)

// SourceStore records which backend produced a memory record.
type SourceStore string

const (
	SourceGraph  SourceStore = "graph"
	SourceVector SourceStore = "vector"
	SourceBoth   SourceStore = "both"
)

// MemoryRecord is the transient read-path result. Score is relevance to the
// querying context in [0,1].
type MemoryRecord struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	SourceStore SourceStore       `json:"source_store"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MergeRecords joins the graph-side and vector-side candidate lists by shared
// id. Records present in both sets take the maximum of their two scores and
// are tagged SourceBoth; others keep their single-store score. Cross-store
// joins rely on the shared id only, never on content matching.
func MergeRecords(graphSide, vectorSide []MemoryRecord) []MemoryRecord {
	merged := make([]MemoryRecord, 0, len(graphSide)+len(vectorSide))
	byID := make(map[string]int, len(graphSide))
	for _, rec := range graphSide {
		byID[rec.ID] = len(merged)
		merged = append(merged, rec)
	}
	for _, rec := range vectorSide {
		idx, ok := byID[rec.ID]
		if !ok {
			merged = append(merged, rec)
			continue
		}
		prev := &merged[idx]
		if rec.Score > prev.Score {
			prev.Score = rec.Score
		}
		if prev.Content == "" {
			prev.Content = rec.Content
		}
		if prev.CreatedAt.IsZero() {
			prev.CreatedAt = rec.CreatedAt
		}
		prev.SourceStore = SourceBoth
	}
	return merged
}

// RankRecords orders candidates by descending score, breaking ties by the
// most recent timestamp, drops records at or below floor and truncates to
// limit. An empty result is a normal outcome, not an error.
func RankRecords(records []MemoryRecord, limit int, floor float64) []MemoryRecord {
	kept := make([]MemoryRecord, 0, len(records))
	for _, rec := range records {
		if rec.Score > floor {
			kept = append(kept, rec)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].CreatedAt.After(kept[j].CreatedAt)
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
