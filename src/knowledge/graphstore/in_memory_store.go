package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
)

// InMemoryStore is a process-local GraphStore used by tests and by embedded
// deployments that do not run a graph database.
type InMemoryStore struct {
	mu            sync.RWMutex
	entitiesByKey map[string]*model.Entity
	entitiesByID  map[string]*model.Entity
	facts         map[string]*model.Fact
	factsByEntity map[string][]string
	turns         map[string]model.ConversationTurn
	turnMentions  map[string][]string
	sessions      map[string][]string

	newID func() string
}

var _ GraphStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entitiesByKey: make(map[string]*model.Entity),
		entitiesByID:  make(map[string]*model.Entity),
		facts:         make(map[string]*model.Fact),
		factsByEntity: make(map[string][]string),
		turns:         make(map[string]model.ConversationTurn),
		turnMentions:  make(map[string][]string),
		sessions:      make(map[string][]string),
		newID:         uuid.NewString,
	}
}

func (s *InMemoryStore) UpsertEntity(_ context.Context, entity model.Entity) (string, error) {
	if strings.TrimSpace(entity.Name) == "" {
		return "", fmt.Errorf("entity name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entity.Key()
	if existing, ok := s.entitiesByKey[key]; ok {
		existing.MergeProperties(entity.Properties)
		return existing.ID, nil
	}
	stored := entity
	if stored.ID == "" {
		stored.ID = s.newID()
	}
	s.entitiesByKey[key] = &stored
	s.entitiesByID[stored.ID] = &stored
	return stored.ID, nil
}

func (s *InMemoryStore) UpsertFact(_ context.Context, fact model.Fact) (string, error) {
	if fact.ID == "" {
		fact.ID = s.newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range fact.RelatedEntityIDs {
		if _, ok := s.entitiesByID[id]; !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingEntity, id)
		}
	}
	stored := fact
	s.facts[stored.ID] = &stored
	for _, id := range stored.RelatedEntityIDs {
		s.factsByEntity[id] = append(s.factsByEntity[id], stored.ID)
	}
	return stored.ID, nil
}

func (s *InMemoryStore) UpsertTurn(_ context.Context, turn model.ConversationTurn, entityIDs []string) error {
	if turn.ID == "" {
		turn.ID = s.newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.ID] = turn
	s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], turn.ID)
	for _, id := range entityIDs {
		if _, ok := s.entitiesByID[id]; ok {
			s.turnMentions[turn.ID] = append(s.turnMentions[turn.ID], id)
		}
	}
	return nil
}

func (s *InMemoryStore) QueryEntity(_ context.Context, name string) (*EntityInfo, error) {
	normalized := model.NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.entitiesByKey {
		if strings.HasPrefix(key, normalized+"␟") {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	// Same name under several types resolves deterministically.
	sort.Strings(keys)
	entity := s.entitiesByKey[keys[0]]

	info := &EntityInfo{Entity: cloneEntity(entity)}
	seen := map[string]struct{}{}
	neighborEntities := map[string]struct{}{}
	for _, factID := range s.factsByEntity[entity.ID] {
		fact := s.facts[factID]
		if fact == nil {
			continue
		}
		if _, ok := seen[fact.ID]; ok {
			continue
		}
		seen[fact.ID] = struct{}{}
		info.Facts = append(info.Facts, ConnectedFact{Fact: *fact, Hops: 0})
		for _, other := range fact.RelatedEntityIDs {
			if other != entity.ID {
				neighborEntities[other] = struct{}{}
			}
		}
	}
	for other := range neighborEntities {
		for _, factID := range s.factsByEntity[other] {
			fact := s.facts[factID]
			if fact == nil {
				continue
			}
			if _, ok := seen[fact.ID]; ok {
				continue
			}
			seen[fact.ID] = struct{}{}
			info.Facts = append(info.Facts, ConnectedFact{Fact: *fact, Hops: 1})
		}
	}
	sort.SliceStable(info.Facts, func(i, j int) bool {
		if info.Facts[i].Hops != info.Facts[j].Hops {
			return info.Facts[i].Hops < info.Facts[j].Hops
		}
		return info.Facts[i].Fact.CreatedAt.After(info.Facts[j].Fact.CreatedAt)
	})
	return info, nil
}

func (s *InMemoryStore) EntitiesByType(_ context.Context, typ model.EntityType, limit int) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Entity
	for _, ent := range s.entitiesByID {
		if ent.Type == typ {
			out = append(out, cloneEntity(ent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) FactByID(_ context.Context, id string) (*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.facts[id]
	if !ok {
		return nil, fmt.Errorf("%w: fact %s", ErrNotFound, id)
	}
	clone := *fact
	return &clone, nil
}

func (s *InMemoryStore) ListFacts(_ context.Context) ([]model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Fact, 0, len(s.facts))
	for _, fact := range s.facts {
		out = append(out, *fact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Run is unsupported: there is no query language over plain maps.
func (s *InMemoryStore) Run(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, ErrQueryUnsupported
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close(context.Context) error { return nil }

// TurnsInSession returns the stored turn ids for a session, in append order.
func (s *InMemoryStore) TurnsInSession(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out
}

func cloneEntity(e *model.Entity) model.Entity {
	clone := *e
	if e.Properties != nil {
		clone.Properties = make(map[string]model.PropertyValue, len(e.Properties))
		for k, v := range e.Properties {
			clone.Properties[k] = v
		}
	}
	return clone
}
