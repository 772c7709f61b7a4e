// Command memdemo exercises the memory layer end to end: store a few turns
// and facts, then ask for relevant memories back.
//
// With no provider environment set it runs fully offline on the in-memory
// graph store, an ephemeral vector collection and the dummy embedder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"

	knowledge "github.com/Protocol-Lattice/agent-memory/src/knowledge"
)

func main() {
	var (
		fact      = flag.String("fact", "", "store a fact statement")
		source    = flag.String("source", "", "provenance for -fact")
		turn      = flag.String("turn", "", "store a conversation turn")
		session   = flag.String("session", "demo-session", "session id for -turn")
		query     = flag.String("query", "", "retrieve memories relevant to this text")
		limit     = flag.Int("limit", 5, "maximum results for -query")
		entity    = flag.String("entity", "", "look up one entity with its facts")
		reconcile = flag.Bool("reconcile", false, "re-embed graph facts missing from the vector index")
		persist   = flag.Bool("persist", false, "persist the vector index on disk")
		seed      = flag.Bool("seed", false, "load a small example dataset first")
	)
	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true, Prefix: "memdemo"})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := knowledge.FromEnv()
	var (
		vector knowledge.VectorStore
		err    error
	)
	switch {
	case cfg.PostgresDSN != "":
		vector, err = knowledge.NewPostgresStore(ctx, cfg.PostgresDSN, knowledge.AutoEmbedder())
		if err == nil {
			logger.Info("using pgvector vector store")
		}
	case *persist:
		vector, err = knowledge.NewChromemStore(cfg.ChromaPersistDir, cfg.ChromaCollection, knowledge.AutoEmbedder())
	default:
		vector, err = knowledge.NewEphemeralChromemStore(cfg.ChromaCollection, knowledge.AutoEmbedder())
	}
	if err != nil {
		logger.Fatal("vector store", "err", err)
	}
	graph, err := newGraphStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("graph store", "err", err)
	}

	mgr := knowledge.NewManager(graph, vector, knowledge.Options{AutoExtractFacts: cfg.AutoExtractFacts}).
		WithLogger(logger)
	if llm := knowledge.AutoLLM(); llm != nil {
		x := knowledge.NewExtractor(llm)
		mgr.WithEntityExtractor(x).WithFactExtractor(x)
		logger.Info("extraction enabled")
	} else {
		logger.Info("no extraction backend configured, storing raw content only")
	}
	if err := mgr.Initialize(ctx); err != nil {
		logger.Fatal("initialize", "err", err)
	}
	defer mgr.Close(ctx)

	if *seed {
		seedDataset(ctx, mgr, logger)
	}
	if *fact != "" {
		stored, err := mgr.StoreFact(ctx, *fact, *source)
		if err != nil {
			var partial *knowledge.PartialWriteError
			if !asPartial(err, &partial) {
				logger.Fatal("store fact", "err", err)
			}
			logger.Warn("fact stored partially", "id", partial.ID, "err", partial.Err)
		}
		logger.Info("fact stored", "id", stored.ID, "source", stored.Source)
	}
	if *turn != "" {
		stored, err := mgr.StoreConversationTurn(ctx, knowledge.ConversationTurn{
			SessionID: *session,
			Role:      knowledge.RoleUser,
			Text:      *turn,
		})
		if err != nil {
			var partial *knowledge.PartialWriteError
			if !asPartial(err, &partial) {
				logger.Fatal("store turn", "err", err)
			}
			logger.Warn("turn stored partially", "id", partial.ID, "err", partial.Err)
		}
		logger.Info("turn stored", "id", stored.ID, "session", stored.SessionID)
	}
	if *entity != "" {
		info, err := mgr.GetEntityInformation(ctx, *entity)
		if err != nil {
			logger.Fatal("entity lookup", "err", err)
		}
		fmt.Printf("%s (%s)\n", info.Entity.Name, info.Entity.Type)
		for _, cf := range info.Facts {
			fmt.Printf("  [%d hop] %s (%s)\n", cf.Hops, cf.Fact.Statement, cf.Fact.Source)
		}
	}
	if *reconcile {
		repaired, err := mgr.ReconcileVectorIndex(ctx)
		if err != nil {
			logger.Fatal("reconcile", "err", err)
		}
		logger.Info("reconcile finished", "repaired", repaired)
	}
	if *query != "" {
		records, err := mgr.RetrieveRelevantMemories(ctx, *query, *limit)
		if err != nil {
			logger.Fatal("retrieve", "err", err)
		}
		if len(records) == 0 {
			fmt.Println("no relevant memories")
			return
		}
		for i, rec := range records {
			fmt.Printf("%d. [%.2f %s/%s] %s\n", i+1, rec.Score, rec.Kind, rec.SourceStore, rec.Content)
		}
	}
}

func seedDataset(ctx context.Context, mgr *knowledge.Manager, logger *charmlog.Logger) {
	facts := []struct{ statement, source string }{
		{"Alice leads the Atlas project", "standup notes"},
		{"The Atlas project ships in October", "planning meeting"},
		{"Bob maintains the billing service", "onboarding doc"},
	}
	for _, f := range facts {
		if _, err := mgr.StoreFact(ctx, f.statement, f.source); err != nil {
			logger.Warn("seed fact skipped", "err", err)
		}
	}
	turns := []string{
		"can you remind me who runs Atlas?",
		"the billing service had an outage last night",
	}
	for _, text := range turns {
		if _, err := mgr.StoreConversationTurn(ctx, knowledge.ConversationTurn{SessionID: "seed", Role: knowledge.RoleUser, Text: text}); err != nil {
			logger.Warn("seed turn skipped", "err", err)
		}
	}
	logger.Info("seeded example dataset", "facts", len(facts), "turns", len(turns))
}

func asPartial(err error, target **knowledge.PartialWriteError) bool {
	return err != nil && errors.As(err, target)
}
