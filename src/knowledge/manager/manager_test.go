package manager

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/graphstore"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/vectorstore"
)

// fakeVector is a token-overlap vector store: distance is 1 - jaccard over
// lowercase tokens. Deterministic, and failure modes can be switched on.
type fakeVector struct {
	docs      map[string]fakeDoc
	order     []string
	upsertErr error
	searchErr error
	pingErr   error
}

type fakeDoc struct {
	text string
	meta map[string]string
}

func newFakeVector() *fakeVector {
	return &fakeVector{docs: make(map[string]fakeDoc)}
}

func (f *fakeVector) UpsertEmbedding(_ context.Context, id, text string, metadata map[string]string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if _, ok := f.docs[id]; !ok {
		f.order = append(f.order, id)
	}
	f.docs[id] = fakeDoc{text: text, meta: metadata}
	return nil
}

func (f *fakeVector) SimilaritySearch(_ context.Context, query string, limit int, filter map[string]string) ([]vectorstore.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []vectorstore.SearchHit
	for _, id := range f.order {
		doc := f.docs[id]
		if !matchesFilter(doc.meta, filter) {
			continue
		}
		hits = append(hits, vectorstore.SearchHit{
			ID:       id,
			Text:     doc.text,
			Metadata: doc.meta,
			Distance: 1 - jaccard(query, doc.text),
		})
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Distance < hits[i].Distance {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeVector) Has(_ context.Context, id string) (bool, error) {
	_, ok := f.docs[id]
	return ok, nil
}

func (f *fakeVector) Count(context.Context) (int, error) { return len(f.docs), nil }

func (f *fakeVector) Ping(context.Context) error { return f.pingErr }

func (f *fakeVector) Close(context.Context) error { return nil }

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func jaccard(a, b string) float64 {
	setA := tokens(a)
	setB := tokens(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(tok, ".,!?")] = struct{}{}
	}
	return out
}

// flakyGraph injects failures in front of a real in-memory graph.
type flakyGraph struct {
	graphstore.GraphStore
	entityErr error
	factErr   error
	turnErr   error
	queryErr  error
}

func (g *flakyGraph) UpsertEntity(ctx context.Context, entity model.Entity) (string, error) {
	if g.entityErr != nil {
		return "", g.entityErr
	}
	return g.GraphStore.UpsertEntity(ctx, entity)
}

func (g *flakyGraph) UpsertFact(ctx context.Context, fact model.Fact) (string, error) {
	if g.factErr != nil {
		return "", g.factErr
	}
	return g.GraphStore.UpsertFact(ctx, fact)
}

func (g *flakyGraph) UpsertTurn(ctx context.Context, turn model.ConversationTurn, entityIDs []string) error {
	if g.turnErr != nil {
		return g.turnErr
	}
	return g.GraphStore.UpsertTurn(ctx, turn, entityIDs)
}

func (g *flakyGraph) QueryEntity(ctx context.Context, name string) (*graphstore.EntityInfo, error) {
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return g.GraphStore.QueryEntity(ctx, name)
}

// stubEntities recognises a fixed roster of entities by substring match.
type stubEntities struct {
	known []model.Entity
}

func (s stubEntities) ExtractEntities(_ context.Context, text string) ([]model.Entity, error) {
	lower := strings.ToLower(text)
	var out []model.Entity
	for _, e := range s.known {
		if strings.Contains(lower, strings.ToLower(e.Name)) {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubFacts struct {
	drafts []model.FactDraft
}

func (s stubFacts) ExtractFacts(context.Context, string, string) ([]model.FactDraft, error) {
	return s.drafts, nil
}

func newTestManager(graph graphstore.GraphStore, vector vectorstore.VectorStore, opts Options) *Manager {
	m := NewManager(graph, vector, opts)
	m.WithLogger(charmlog.New(io.Discard))
	m.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestInitializeIsIdempotentAndRetries(t *testing.T) {
	vec := newFakeVector()
	vec.pingErr = errors.New("index offline")
	m := newTestManager(graphstore.NewInMemoryStore(), vec, Options{})
	ctx := context.Background()

	if err := m.Initialize(ctx); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	vec.pingErr = nil
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("retry must succeed, got %v", err)
	}
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("re-initialize must be a no-op, got %v", err)
	}
}

func TestStoreFactWritesBothStores(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
		{Name: "Acme", Type: model.EntityOrganization},
	}})
	ctx := context.Background()

	fact, err := m.StoreFact(ctx, "Alice works at Acme", "meeting notes")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	if fact.ID == "" || len(fact.RelatedEntityIDs) != 2 {
		t.Fatalf("expected linked fact, got %+v", fact)
	}

	info, err := m.GetEntityInformation(ctx, "alice")
	if err != nil {
		t.Fatalf("entity lookup: %v", err)
	}
	if len(info.Facts) != 1 || info.Facts[0].Fact.ID != fact.ID || info.Facts[0].Hops != 0 {
		t.Fatalf("expected direct fact in graph, got %+v", info.Facts)
	}
	if ok, _ := vec.Has(ctx, fact.ID); !ok {
		t.Fatal("fact must be indexed under the same id")
	}

	records, err := m.RetrieveRelevantMemories(ctx, "where does Alice work", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(records) != 1 || records[0].ID != fact.ID {
		t.Fatalf("expected the stored fact back, got %+v", records)
	}
	if records[0].SourceStore != model.SourceBoth {
		t.Fatalf("expected merged record, got %s", records[0].SourceStore)
	}
	if records[0].Score != 1.0 {
		t.Fatalf("direct graph match must score 1.0, got %f", records[0].Score)
	}
}

func TestStoreFactCreatesCallerSuppliedEntities(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	fact, err := m.StoreFact(ctx, "OpenManus is an open-source agent framework", "doc",
		model.Entity{Name: "OpenManus", Type: model.EntityProject})
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	if len(fact.RelatedEntityIDs) != 1 {
		t.Fatalf("expected one linked entity, got %+v", fact.RelatedEntityIDs)
	}

	info, err := m.GetEntityInformation(ctx, "OpenManus")
	if err != nil {
		t.Fatalf("the write must create the entity, got %v", err)
	}
	if info.Entity.Type != model.EntityProject || info.Entity.ID != fact.RelatedEntityIDs[0] {
		t.Fatalf("unexpected entity, got %+v", info.Entity)
	}
	if len(info.Facts) != 1 || info.Facts[0].Fact.ID != fact.ID || info.Facts[0].Hops != 0 {
		t.Fatalf("expected one direct connected fact, got %+v", info.Facts)
	}
}

func TestStoreFactUnionsCallerAndExtractedEntities(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	m := newTestManager(graph, newFakeVector(), Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
	}})
	ctx := context.Background()

	fact, err := m.StoreFact(ctx, "Alice leads OpenManus", "doc",
		model.Entity{Name: "OpenManus", Type: model.EntityProject},
		model.Entity{Name: "Alice", Type: model.EntityPerson})
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	// Alice arrives from both the caller and the extractor; one id each.
	if len(fact.RelatedEntityIDs) != 2 {
		t.Fatalf("expected two distinct entity ids, got %+v", fact.RelatedEntityIDs)
	}
}

func TestStoreFactFailsWhenRelatedEntityCannotBeWritten(t *testing.T) {
	vec := newFakeVector()
	graph := &flakyGraph{GraphStore: graphstore.NewInMemoryStore(), entityErr: errors.New("graph down")}
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	if _, err := m.StoreFact(ctx, "statement", "doc", model.Entity{Name: "OpenManus", Type: model.EntityProject}); err == nil {
		t.Fatal("a caller-supplied entity that cannot be upserted must fail the write")
	}
	if count, _ := vec.Count(ctx); count != 0 {
		t.Fatalf("vector index must stay untouched, got %d documents", count)
	}
}

func TestStoreFactGraphFailureWritesNothing(t *testing.T) {
	vec := newFakeVector()
	graph := &flakyGraph{GraphStore: graphstore.NewInMemoryStore(), factErr: errors.New("graph down")}
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	if _, err := m.StoreFact(ctx, "orphan statement", ""); err == nil {
		t.Fatal("expected graph failure to reject the write")
	}
	if count, _ := vec.Count(ctx); count != 0 {
		t.Fatalf("vector index must stay untouched, got %d documents", count)
	}
}

func TestStoreFactVectorFailureIsPartialAndRepairable(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	vec.upsertErr = errors.New("index write refused")
	fact, err := m.StoreFact(ctx, "Alice prefers tea over coffee", "chat")
	var partial *PartialWriteError
	if !errors.As(err, &partial) || partial.ID != fact.ID {
		t.Fatalf("expected PartialWriteError for the fact, got %v", err)
	}
	if _, gErr := graph.FactByID(ctx, fact.ID); gErr != nil {
		t.Fatalf("graph copy must exist, got %v", gErr)
	}

	// Semantic recall misses the degraded fact.
	vec.upsertErr = nil
	records, err := m.RetrieveRelevantMemories(ctx, "does alice like tea", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, rec := range records {
		if rec.ID == fact.ID {
			t.Fatal("degraded fact must not surface before repair")
		}
	}

	if err := m.ReindexFact(ctx, fact.ID); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	records, err = m.RetrieveRelevantMemories(ctx, "does alice like tea", 5)
	if err != nil {
		t.Fatalf("retrieve after repair: %v", err)
	}
	if len(records) != 1 || records[0].ID != fact.ID {
		t.Fatalf("expected repaired fact back, got %+v", records)
	}
}

func TestRetrieveMergesAndRanks(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
	}})
	ctx := context.Background()

	linked, err := m.StoreFact(ctx, "Alice works at Acme", "meeting")
	if err != nil {
		t.Fatalf("store linked fact: %v", err)
	}
	unlinked, err := m.StoreFact(ctx, "Acme ships widgets worldwide", "press")
	if err != nil {
		t.Fatalf("store unlinked fact: %v", err)
	}

	records, err := m.RetrieveRelevantMemories(ctx, "Alice Acme widgets", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected both facts, got %+v", records)
	}
	if records[0].ID != linked.ID || records[0].SourceStore != model.SourceBoth {
		t.Fatalf("graph-confirmed fact must rank first as both, got %+v", records[0])
	}
	if records[1].ID != unlinked.ID || records[1].SourceStore != model.SourceVector {
		t.Fatalf("second record must be the vector-only fact, got %+v", records[1])
	}
	if records[0].Score <= records[1].Score {
		t.Fatalf("expected descending scores, got %f then %f", records[0].Score, records[1].Score)
	}
}

func TestRetrieveDegradesWhenOneStoreFails(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
	}})
	ctx := context.Background()

	fact, err := m.StoreFact(ctx, "Alice works at Acme", "meeting")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}

	vec.searchErr = errors.New("index offline")
	records, err := m.RetrieveRelevantMemories(ctx, "tell me about Alice", 5)
	if err != nil {
		t.Fatalf("single-store failure must degrade, got %v", err)
	}
	if len(records) != 1 || records[0].ID != fact.ID || records[0].SourceStore != model.SourceGraph {
		t.Fatalf("expected graph-only answer, got %+v", records)
	}
}

func TestRetrieveFailsWhenBothStoresFail(t *testing.T) {
	graph := &flakyGraph{GraphStore: graphstore.NewInMemoryStore(), queryErr: errors.New("graph offline")}
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
	}})
	ctx := context.Background()

	vec.searchErr = errors.New("index offline")
	if _, err := m.RetrieveRelevantMemories(ctx, "tell me about Alice", 5); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRelevanceFloorDropsUnrelatedRecords(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	if _, err := m.StoreFact(ctx, "quarterly revenue grew", "report"); err != nil {
		t.Fatalf("store fact: %v", err)
	}
	records, err := m.RetrieveRelevantMemories(ctx, "weather in berlin", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("zero-score records must be dropped, got %+v", records)
	}
}

func TestStoreConversationTurnSurvivesGraphFailure(t *testing.T) {
	vec := newFakeVector()
	graph := &flakyGraph{GraphStore: graphstore.NewInMemoryStore(), turnErr: errors.New("graph down")}
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	turn, err := m.StoreConversationTurn(ctx, model.ConversationTurn{
		SessionID: "s1",
		Role:      model.RoleUser,
		Text:      "my favorite color is green",
	})
	var partial *PartialWriteError
	if !errors.As(err, &partial) || partial.ID != turn.ID {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if ok, _ := vec.Has(ctx, turn.ID); !ok {
		t.Fatal("turn must still reach the vector index")
	}
}

func TestStoreConversationTurnFailsWhenBothStoresFail(t *testing.T) {
	vec := newFakeVector()
	vec.upsertErr = errors.New("index down")
	graph := &flakyGraph{GraphStore: graphstore.NewInMemoryStore(), turnErr: errors.New("graph down")}
	m := newTestManager(graph, vec, Options{})

	_, err := m.StoreConversationTurn(context.Background(), model.ConversationTurn{SessionID: "s1", Text: "hello"})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAutoExtractFactsDistillsTurns(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{AutoExtractFacts: true}).
		WithFactExtractor(stubFacts{drafts: []model.FactDraft{
			{Statement: "the user prefers green", Source: "conversation"},
		}})
	ctx := context.Background()

	if _, err := m.StoreConversationTurn(ctx, model.ConversationTurn{SessionID: "s1", Text: "my favorite color is green"}); err != nil {
		t.Fatalf("store turn: %v", err)
	}
	facts, err := graph.ListFacts(ctx)
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(facts) != 1 || facts[0].Statement != "the user prefers green" {
		t.Fatalf("expected one distilled fact, got %+v", facts)
	}
	if facts[0].Source != "conversation" {
		t.Fatalf("expected extractor source kept, got %q", facts[0].Source)
	}
}

func TestDistilledFactsLinkDraftEntities(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	ctx := context.Background()
	if _, err := graph.UpsertEntity(ctx, model.Entity{Name: "Atlas", Type: model.EntityProject}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}
	m := newTestManager(graph, newFakeVector(), Options{AutoExtractFacts: true}).
		WithFactExtractor(stubFacts{drafts: []model.FactDraft{
			{Statement: "the user works on Atlas", Source: "conversation", RelatedEntityNames: []string{"Atlas", "Helios"}},
		}})

	if _, err := m.StoreConversationTurn(ctx, model.ConversationTurn{SessionID: "s1", Text: "I spent the day on Atlas"}); err != nil {
		t.Fatalf("store turn: %v", err)
	}

	atlas, err := m.GetEntityInformation(ctx, "Atlas")
	if err != nil {
		t.Fatalf("atlas lookup: %v", err)
	}
	// A draft name matching an existing node reuses it, type intact.
	if atlas.Entity.Type != model.EntityProject {
		t.Fatalf("expected the existing Project node, got %+v", atlas.Entity)
	}
	if len(atlas.Facts) != 1 || atlas.Facts[0].Fact.Statement != "the user works on Atlas" {
		t.Fatalf("expected the distilled fact linked to Atlas, got %+v", atlas.Facts)
	}
	helios, err := m.GetEntityInformation(ctx, "Helios")
	if err != nil {
		t.Fatalf("an unknown draft name must create its entity, got %v", err)
	}
	if helios.Entity.Type != model.EntityOther {
		t.Fatalf("expected a fresh Other node, got %+v", helios.Entity)
	}
	if len(helios.Facts) == 0 || helios.Facts[0].Fact.Statement != "the user works on Atlas" {
		t.Fatalf("expected the distilled fact linked to Helios, got %+v", helios.Facts)
	}
}

func TestGraphCandidatesTruncateByScore(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	m := newTestManager(graph, newFakeVector(), Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
		{Name: "Bob", Type: model.EntityPerson},
	}})
	ctx := context.Background()

	carol := model.Entity{Name: "Carol", Type: model.EntityPerson}
	direct, err := m.StoreFact(ctx, "Alice mentors Carol", "notes", carol)
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	// One hop from Alice through the co-mention with Carol.
	if _, err := m.StoreFact(ctx, "Carol studies compilers", "notes", carol); err != nil {
		t.Fatalf("store fact: %v", err)
	}
	lateDirect, err := m.StoreFact(ctx, "Bob rides a bike", "notes")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}

	records, err := m.graphCandidates(ctx, "Alice and Bob", 2)
	if err != nil {
		t.Fatalf("graph candidates: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected truncation to 2, got %+v", records)
	}
	// Both direct facts survive; the earlier-seen neighbor fact is cut.
	if records[0].ID != direct.ID || records[1].ID != lateDirect.ID {
		t.Fatalf("expected the two hop-0 facts, got %s then %s", records[0].ID, records[1].ID)
	}
	if records[0].Score != 1.0 || records[1].Score != 1.0 {
		t.Fatalf("expected direct-fact scores, got %f and %f", records[0].Score, records[1].Score)
	}
}

func TestCategorizeMemoriesGroupsByKind(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	fact, err := m.StoreFact(ctx, "the project deadline is friday", "planning")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	turn, err := m.StoreConversationTurn(ctx, model.ConversationTurn{
		SessionID: "s1",
		Role:      model.RoleUser,
		Text:      "remind me about the project deadline",
	})
	if err != nil {
		t.Fatalf("store turn: %v", err)
	}

	grouped, err := m.CategorizeMemories(ctx, "project deadline")
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if len(grouped[model.KindFact]) != 1 || grouped[model.KindFact][0].ID != fact.ID {
		t.Fatalf("expected the fact grouped under facts, got %+v", grouped[model.KindFact])
	}
	if len(grouped[model.KindConversation]) != 1 || grouped[model.KindConversation][0].ID != turn.ID {
		t.Fatalf("expected the turn grouped under conversations, got %+v", grouped[model.KindConversation])
	}
}

func TestRetrieveMemoriesBySourceOrdersByRecency(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { now = now.Add(time.Minute); return now }
	ctx := context.Background()

	older, err := m.StoreFact(ctx, "budget approved", "meeting")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	newer, err := m.StoreFact(ctx, "headcount plan agreed", "meeting")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	if _, err := m.StoreFact(ctx, "budget rejected last year", "archive"); err != nil {
		t.Fatalf("store fact: %v", err)
	}

	records, err := m.RetrieveMemoriesBySource(ctx, "meeting", 10)
	if err != nil {
		t.Fatalf("retrieve by source: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected only the meeting facts, got %+v", records)
	}
	if records[0].ID != newer.ID || records[1].ID != older.ID {
		t.Fatalf("expected most recent first, got %s then %s", records[0].ID, records[1].ID)
	}
}

func TestReconcileVectorIndexRepairsMissingFacts(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := newFakeVector()
	m := newTestManager(graph, vec, Options{})
	ctx := context.Background()

	kept, err := m.StoreFact(ctx, "fact that stays indexed", "a")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	lost, err := m.StoreFact(ctx, "fact that loses its embedding", "b")
	if err != nil {
		t.Fatalf("store fact: %v", err)
	}
	delete(vec.docs, lost.ID)

	repaired, err := m.ReconcileVectorIndex(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", repaired)
	}
	for _, id := range []string{kept.ID, lost.ID} {
		if ok, _ := vec.Has(ctx, id); !ok {
			t.Fatalf("expected %s indexed after reconcile", id)
		}
	}
}

func TestRetrieveByEntityType(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	m := newTestManager(graph, newFakeVector(), Options{}).WithEntityExtractor(stubEntities{known: []model.Entity{
		{Name: "Alice", Type: model.EntityPerson},
		{Name: "Acme", Type: model.EntityOrganization},
	}})
	ctx := context.Background()

	if _, err := m.StoreFact(ctx, "Alice works at Acme", ""); err != nil {
		t.Fatalf("store fact: %v", err)
	}
	orgs, err := m.RetrieveByEntityType(ctx, model.EntityOrganization, 10)
	if err != nil {
		t.Fatalf("retrieve by type: %v", err)
	}
	if len(orgs) != 1 || orgs[0].Name != "Acme" {
		t.Fatalf("expected Acme, got %+v", orgs)
	}
}
