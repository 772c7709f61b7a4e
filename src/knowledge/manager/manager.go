// Package manager reconciles the graph store and the vector store behind one
// write and read surface. Writes go to the graph first, then the vector
// index; reads fan out to both stores, merge by shared id and rank by score.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/extract"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/graphstore"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
	"github.com/Protocol-Lattice/agent-memory/src/knowledge/vectorstore"
)

// Metadata keys attached to vector documents.
const (
	metaKind      = "kind"
	metaSource    = "source"
	metaSessionID = "session_id"
	metaRole      = "role"
	metaCreatedAt = "created_at"
)

// Manager is the single entry point of the memory layer.
type Manager struct {
	graph    graphstore.GraphStore
	vector   vectorstore.VectorStore
	entities extract.EntityExtractor
	facts    extract.FactExtractor
	opts     Options
	logger   *charmlog.Logger
	clock    func() time.Time
	newID    func() string

	mu          sync.Mutex
	initialized bool
}

// NewManager wires a manager over the two stores. Extraction is off until an
// extractor is attached; writes then persist raw content without linkage.
func NewManager(graph graphstore.GraphStore, vector vectorstore.VectorStore, opts Options) *Manager {
	return &Manager{
		graph:  graph,
		vector: vector,
		opts:   opts.withDefaults(),
		logger: charmlog.WithPrefix("memory"),
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// WithEntityExtractor attaches entity extraction to every write and to the
// graph side of retrieval.
func (m *Manager) WithEntityExtractor(x extract.EntityExtractor) *Manager {
	m.entities = x
	return m
}

// WithFactExtractor attaches fact distillation, used when AutoExtractFacts
// is enabled.
func (m *Manager) WithFactExtractor(x extract.FactExtractor) *Manager {
	m.facts = x
	return m
}

// WithLogger overrides the default logger.
func (m *Manager) WithLogger(logger *charmlog.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Initialize verifies both backends are reachable. It is idempotent; a failed
// attempt leaves the manager uninitialized so the next call retries.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	if m.graph == nil || m.vector == nil {
		return fmt.Errorf("%w: manager requires both a graph store and a vector store", ErrBackendUnavailable)
	}
	if err := m.graph.Ping(ctx); err != nil {
		return fmt.Errorf("%w: graph store: %v", ErrBackendUnavailable, err)
	}
	if err := m.vector.Ping(ctx); err != nil {
		return fmt.Errorf("%w: vector store: %v", ErrBackendUnavailable, err)
	}
	m.initialized = true
	return nil
}

func (m *Manager) ensureReady(ctx context.Context) error {
	m.mu.Lock()
	ready := m.initialized
	m.mu.Unlock()
	if ready {
		return nil
	}
	return m.Initialize(ctx)
}

// Close releases both backends.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if m.graph != nil {
		errs = append(errs, m.graph.Close(ctx))
	}
	if m.vector != nil {
		errs = append(errs, m.vector.Close(ctx))
	}
	return errors.Join(errs...)
}

// StoreFact persists an atomic statement in both stores under one id.
// Caller-supplied related entities are upserted first so the fact links to
// them deterministically, whether or not they existed before the call;
// entities found by the extractor are unioned in on top. The graph write
// comes first; if it fails nothing is written. A vector failure after a
// successful graph write returns the fact together with a PartialWriteError
// so the caller knows semantic recall is degraded.
func (m *Manager) StoreFact(ctx context.Context, statement, source string, related ...model.Entity) (model.Fact, error) {
	if err := m.ensureReady(ctx); err != nil {
		return model.Fact{}, err
	}
	if strings.TrimSpace(statement) == "" {
		return model.Fact{}, errors.New("fact statement is empty")
	}
	if strings.TrimSpace(source) == "" {
		source = extract.DefaultSource
	}
	entityIDs, err := m.upsertRelatedEntities(ctx, related)
	if err != nil {
		return model.Fact{}, fmt.Errorf("graph write: %w", err)
	}
	fact := model.Fact{
		ID:               m.newID(),
		Statement:        statement,
		Source:           source,
		CreatedAt:        m.clock().UTC(),
		RelatedEntityIDs: unionIDs(entityIDs, m.linkEntities(ctx, statement)),
	}
	if _, err := m.graph.UpsertFact(ctx, fact); err != nil {
		return model.Fact{}, fmt.Errorf("graph write: %w", err)
	}
	if err := m.vector.UpsertEmbedding(ctx, fact.ID, fact.Statement, factMetadata(fact)); err != nil {
		m.logger.Warn("fact indexed in graph only", "id", fact.ID, "err", err)
		return fact, &PartialWriteError{ID: fact.ID, Err: err}
	}
	return fact, nil
}

// StoreConversationTurn appends a turn to its session in the graph and
// indexes its text for semantic recall. Unlike facts, the two writes are
// independent: losing one store degrades the turn instead of rejecting it,
// and only losing both fails the call.
func (m *Manager) StoreConversationTurn(ctx context.Context, turn model.ConversationTurn) (model.ConversationTurn, error) {
	if err := m.ensureReady(ctx); err != nil {
		return model.ConversationTurn{}, err
	}
	if strings.TrimSpace(turn.Text) == "" {
		return model.ConversationTurn{}, errors.New("turn text is empty")
	}
	if strings.TrimSpace(turn.SessionID) == "" {
		return model.ConversationTurn{}, errors.New("turn session id is empty")
	}
	if turn.ID == "" {
		turn.ID = m.newID()
	}
	if turn.Role == "" {
		turn.Role = model.RoleUser
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.clock().UTC()
	}

	entityIDs := m.linkEntities(ctx, turn.Text)
	graphErr := m.graph.UpsertTurn(ctx, turn, entityIDs)
	vectorErr := m.vector.UpsertEmbedding(ctx, turn.ID, turn.Text, turnMetadata(turn))
	if graphErr != nil && vectorErr != nil {
		return model.ConversationTurn{}, fmt.Errorf("%w: graph: %v; vector: %v", ErrBackendUnavailable, graphErr, vectorErr)
	}

	if m.opts.AutoExtractFacts && m.facts != nil {
		m.distillFacts(ctx, turn)
	}

	if graphErr != nil {
		m.logger.Warn("turn indexed in vector store only", "id", turn.ID, "err", graphErr)
		return turn, &PartialWriteError{ID: turn.ID, Err: graphErr}
	}
	if vectorErr != nil {
		m.logger.Warn("turn stored in graph only", "id", turn.ID, "err", vectorErr)
		return turn, &PartialWriteError{ID: turn.ID, Err: vectorErr}
	}
	return turn, nil
}

// distillFacts stores the facts extracted from a turn, linking each to the
// entities its draft names. Best effort: failures are logged, never surfaced.
func (m *Manager) distillFacts(ctx context.Context, turn model.ConversationTurn) {
	drafts, err := m.facts.ExtractFacts(ctx, turn.Text, "")
	if err != nil || len(drafts) == 0 {
		return
	}
	for _, draft := range drafts {
		related := m.resolveDraftEntities(ctx, draft.RelatedEntityNames)
		if _, err := m.StoreFact(ctx, draft.Statement, draft.Source, related...); err != nil {
			var partial *PartialWriteError
			if !errors.As(err, &partial) {
				m.logger.Debug("distilled fact dropped", "err", err)
			}
		}
	}
}

// resolveDraftEntities maps extractor-provided names onto entity descriptors.
// A name already in the graph keeps its node and type; unknown names become
// Other entities, created by the fact write.
func (m *Manager) resolveDraftEntities(ctx context.Context, names []string) []model.Entity {
	entities := make([]model.Entity, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if info, err := m.graph.QueryEntity(ctx, name); err == nil {
			entities = append(entities, info.Entity)
			continue
		}
		entities = append(entities, model.Entity{Name: name, Type: model.EntityOther})
	}
	return entities
}

// upsertRelatedEntities writes caller-supplied entity descriptors to the
// graph. Unlike extraction this is not best effort: a caller naming an entity
// expects the fact to link to it, so a failed upsert fails the write.
func (m *Manager) upsertRelatedEntities(ctx context.Context, related []model.Entity) ([]string, error) {
	if len(related) == 0 {
		return nil, nil
	}
	deduped := model.DedupeEntities(related)
	ids := make([]string, 0, len(deduped))
	for _, ent := range deduped {
		id, err := m.graph.UpsertEntity(ctx, ent)
		if err != nil {
			return nil, fmt.Errorf("upsert entity %q: %w", ent.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func unionIDs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, ids := range [][]string{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// linkEntities extracts and upserts the entities mentioned in text, returning
// their graph ids. Extraction and linking are best effort.
func (m *Manager) linkEntities(ctx context.Context, text string) []string {
	if m.entities == nil {
		return nil
	}
	found, err := m.entities.ExtractEntities(ctx, text)
	if err != nil || len(found) == 0 {
		return nil
	}
	ids := make([]string, 0, len(found))
	for _, ent := range found {
		id, err := m.graph.UpsertEntity(ctx, ent)
		if err != nil {
			m.logger.Debug("entity not linked", "name", ent.Name, "err", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// RetrieveRelevantMemories queries both stores in parallel, merges the
// candidate sets by shared id and returns the top records by score. If one
// store fails the other still answers; only both failing is an error.
func (m *Manager) RetrieveRelevantMemories(ctx context.Context, query string, limit int) ([]model.MemoryRecord, error) {
	if err := m.ensureReady(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if limit <= 0 {
		limit = m.opts.SearchLimit
	}
	fetch := limit * m.opts.OverfetchFactor

	var (
		graphRecs, vectorRecs []model.MemoryRecord
		graphErr, vectorErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		graphRecs, graphErr = m.graphCandidates(gctx, query, fetch)
		return nil
	})
	g.Go(func() error {
		vectorRecs, vectorErr = m.vectorCandidates(gctx, query, fetch)
		return nil
	})
	_ = g.Wait()

	if graphErr != nil && vectorErr != nil {
		return nil, fmt.Errorf("%w: graph: %v; vector: %v", ErrBackendUnavailable, graphErr, vectorErr)
	}
	if graphErr != nil {
		m.logger.Warn("retrieval degraded to vector store", "err", graphErr)
	}
	if vectorErr != nil {
		m.logger.Warn("retrieval degraded to graph store", "err", vectorErr)
	}
	merged := model.MergeRecords(graphRecs, vectorRecs)
	return model.RankRecords(merged, limit, m.opts.RelevanceFloor), nil
}

// graphCandidates resolves the entities mentioned in the query and collects
// their connected facts. Hop distance decays the score: direct facts score
// 1.0, facts one hop out score 0.5.
func (m *Manager) graphCandidates(ctx context.Context, query string, fetch int) ([]model.MemoryRecord, error) {
	if m.entities == nil {
		return nil, nil
	}
	found, err := m.entities.ExtractEntities(ctx, query)
	if err != nil || len(found) == 0 {
		return nil, nil
	}
	best := make(map[string]model.MemoryRecord)
	var order []string
	for _, ent := range found {
		info, err := m.graph.QueryEntity(ctx, ent.Name)
		if err != nil {
			if errors.Is(err, graphstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, cf := range info.Facts {
			rec := model.MemoryRecord{
				ID:          cf.Fact.ID,
				Kind:        model.KindFact,
				Content:     cf.Fact.Statement,
				Score:       1.0 / float64(1+cf.Hops),
				SourceStore: model.SourceGraph,
				CreatedAt:   cf.Fact.CreatedAt,
				Metadata:    map[string]string{metaSource: cf.Fact.Source},
			}
			prev, ok := best[rec.ID]
			if !ok {
				best[rec.ID] = rec
				order = append(order, rec.ID)
				continue
			}
			if rec.Score > prev.Score {
				best[rec.ID] = rec
			}
		}
	}
	records := make([]model.MemoryRecord, 0, len(best))
	for _, id := range order {
		records = append(records, best[id])
	}
	// Truncation must not evict a direct fact in favor of an earlier-seen
	// neighbor fact.
	sort.SliceStable(records, func(i, j int) bool { return records[i].Score > records[j].Score })
	if fetch > 0 && len(records) > fetch {
		records = records[:fetch]
	}
	return records, nil
}

// vectorCandidates maps similarity hits onto memory records. Distance is
// inverted into a score clamped to [0,1].
func (m *Manager) vectorCandidates(ctx context.Context, query string, fetch int) ([]model.MemoryRecord, error) {
	hits, err := m.vector.SimilaritySearch(ctx, query, fetch, nil)
	if err != nil {
		return nil, err
	}
	records := make([]model.MemoryRecord, 0, len(hits))
	for _, hit := range hits {
		records = append(records, hitToRecord(hit))
	}
	return records, nil
}

// CategorizeMemories retrieves candidates for the query and groups them by
// kind, preserving rank order inside each group.
func (m *Manager) CategorizeMemories(ctx context.Context, query string) (map[model.Kind][]model.MemoryRecord, error) {
	records, err := m.RetrieveRelevantMemories(ctx, query, m.opts.CategorizeLimit)
	if err != nil {
		return nil, err
	}
	grouped := make(map[model.Kind][]model.MemoryRecord)
	for _, rec := range records {
		grouped[rec.Kind] = append(grouped[rec.Kind], rec)
	}
	return grouped, nil
}

// GetEntityInformation looks up one entity by name with its connected facts.
func (m *Manager) GetEntityInformation(ctx context.Context, name string) (*graphstore.EntityInfo, error) {
	if err := m.ensureReady(ctx); err != nil {
		return nil, err
	}
	return m.graph.QueryEntity(ctx, name)
}

// RetrieveByEntityType lists entities carrying the given type.
func (m *Manager) RetrieveByEntityType(ctx context.Context, typ model.EntityType, limit int) ([]model.Entity, error) {
	if err := m.ensureReady(ctx); err != nil {
		return nil, err
	}
	return m.graph.EntitiesByType(ctx, typ, limit)
}

// RetrieveMemoriesBySource returns memories attributed to one provenance
// string, most recent first. The metadata filter does the selection; the
// query text only drives the over-fetch, so similarity is not a rank signal
// here.
func (m *Manager) RetrieveMemoriesBySource(ctx context.Context, source string, limit int) ([]model.MemoryRecord, error) {
	if err := m.ensureReady(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("source is empty")
	}
	if limit <= 0 {
		limit = m.opts.SearchLimit
	}
	fetch := limit * m.opts.OverfetchFactor
	hits, err := m.vector.SimilaritySearch(ctx, source, fetch, map[string]string{metaSource: source})
	if err != nil {
		return nil, err
	}
	records := make([]model.MemoryRecord, 0, len(hits))
	for _, hit := range hits {
		records = append(records, hitToRecord(hit))
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// RunGraphQuery passes a structured query straight through to the graph
// backend. It is an escape hatch for exact traversals, not semantic search.
func (m *Manager) RunGraphQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if err := m.ensureReady(ctx); err != nil {
		return nil, err
	}
	return m.graph.Run(ctx, query, params)
}

// ReindexFact repairs a partially written fact by re-upserting its embedding
// from the graph copy, which is the source of truth.
func (m *Manager) ReindexFact(ctx context.Context, id string) error {
	if err := m.ensureReady(ctx); err != nil {
		return err
	}
	fact, err := m.graph.FactByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.vector.UpsertEmbedding(ctx, fact.ID, fact.Statement, factMetadata(*fact)); err != nil {
		return fmt.Errorf("reindex %s: %w", id, err)
	}
	return nil
}

// ReconcileVectorIndex sweeps every graph fact and re-embeds the ones missing
// from the vector index. Returns how many were repaired.
func (m *Manager) ReconcileVectorIndex(ctx context.Context) (int, error) {
	if err := m.ensureReady(ctx); err != nil {
		return 0, err
	}
	facts, err := m.graph.ListFacts(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, fact := range facts {
		ok, err := m.vector.Has(ctx, fact.ID)
		if err != nil {
			return repaired, err
		}
		if ok {
			continue
		}
		if err := m.vector.UpsertEmbedding(ctx, fact.ID, fact.Statement, factMetadata(fact)); err != nil {
			return repaired, fmt.Errorf("reconcile %s: %w", fact.ID, err)
		}
		repaired++
	}
	if repaired > 0 {
		m.logger.Info("vector index reconciled", "repaired", repaired)
	}
	return repaired, nil
}

func factMetadata(fact model.Fact) map[string]string {
	return map[string]string{
		metaKind:      string(model.KindFact),
		metaSource:    fact.Source,
		metaCreatedAt: fact.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func turnMetadata(turn model.ConversationTurn) map[string]string {
	return map[string]string{
		metaKind:      string(model.KindConversation),
		metaSessionID: turn.SessionID,
		metaRole:      string(turn.Role),
		metaCreatedAt: turn.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func hitToRecord(hit vectorstore.SearchHit) model.MemoryRecord {
	score := 1 - hit.Distance
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	kind := model.Kind(hit.Metadata[metaKind])
	switch kind {
	case model.KindFact, model.KindConversation, model.KindEntity:
	default:
		kind = model.KindConversation
	}
	var createdAt time.Time
	if raw := hit.Metadata[metaCreatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			createdAt = ts
		}
	}
	return model.MemoryRecord{
		ID:          hit.ID,
		Kind:        kind,
		Content:     hit.Text,
		Score:       score,
		SourceStore: model.SourceVector,
		CreatedAt:   createdAt,
		Metadata:    hit.Metadata,
	}
}
