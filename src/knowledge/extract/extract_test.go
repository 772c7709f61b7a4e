package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/Protocol-Lattice/agent-memory/src/knowledge/model"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func TestExtractEntitiesParsesAndDedupes(t *testing.T) {
	llm := &fakeLLM{response: "```json\n" + `[
		{"name": "OpenManus", "type": "Project", "properties": {"license": "MIT"}},
		{"name": "openmanus", "type": "project", "properties": {"stars": 42}},
		{"name": "Alice", "type": "Person"},
		{"name": "", "type": "Concept"}
	]` + "\n```"}
	x := NewExtractor(llm)
	entities, err := x.ExtractEntities(context.Background(), "OpenManus was written by Alice")
	if err != nil {
		t.Fatalf("extract entities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities after dedup, got %d", len(entities))
	}
	if entities[0].Type != model.EntityProject {
		t.Fatalf("unexpected type: %s", entities[0].Type)
	}
	if entities[0].Properties["stars"].Num != 42 {
		t.Fatalf("expected merged properties, got %+v", entities[0].Properties)
	}
	if entities[1].Name != "Alice" || entities[1].Type != model.EntityPerson {
		t.Fatalf("unexpected second entity: %+v", entities[1])
	}
}

func TestExtractEntitiesBackendFailureIsSilent(t *testing.T) {
	x := NewExtractor(&fakeLLM{err: errors.New("model offline")})
	entities, err := x.ExtractEntities(context.Background(), "anything")
	if err != nil {
		t.Fatalf("extraction failures must not propagate, got %v", err)
	}
	if len(entities) != 0 {
		t.Fatalf("expected empty set, got %v", entities)
	}
}

func TestExtractEntitiesUnparseableOutputIsSilent(t *testing.T) {
	x := NewExtractor(&fakeLLM{response: "I could not find any entities, sorry!"})
	entities, err := x.ExtractEntities(context.Background(), "anything")
	if err != nil || len(entities) != 0 {
		t.Fatalf("expected silent empty set, got %v / %v", entities, err)
	}
}

func TestExtractEntitiesEmptyTextShortCircuits(t *testing.T) {
	llm := &fakeLLM{response: "[]"}
	x := NewExtractor(llm)
	if _, err := x.ExtractEntities(context.Background(), "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Fatal("blank text should not reach the backend")
	}
}

func TestExtractFactsAttributesSource(t *testing.T) {
	llm := &fakeLLM{response: `[
		{"statement": "OpenManus is an open-source agent framework", "entities": ["OpenManus"]},
		{"content": "Acme Corp employs Alice", "entities": ["Acme Corp", " Alice "], "source": "press release"},
		{"statement": ""}
	]`}
	x := NewExtractor(llm)

	drafts, err := x.ExtractFacts(context.Background(), "some conversation", "")
	if err != nil {
		t.Fatalf("extract facts: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Source != DefaultSource {
		t.Fatalf("expected default source, got %q", drafts[0].Source)
	}
	if drafts[1].Source != "press release" {
		t.Fatalf("expected extracted source, got %q", drafts[1].Source)
	}
	if len(drafts[1].RelatedEntityNames) != 2 || drafts[1].RelatedEntityNames[1] != "Alice" {
		t.Fatalf("expected trimmed entity names, got %v", drafts[1].RelatedEntityNames)
	}

	drafts, err = x.ExtractFacts(context.Background(), "some conversation", "caller-source")
	if err != nil {
		t.Fatalf("extract facts: %v", err)
	}
	if drafts[1].Source != "caller-source" {
		t.Fatalf("caller source must win, got %q", drafts[1].Source)
	}
}

func TestNilBackendExtractsNothing(t *testing.T) {
	x := NewExtractor(nil)
	if ents, err := x.ExtractEntities(context.Background(), "text"); err != nil || len(ents) != 0 {
		t.Fatalf("expected nothing, got %v / %v", ents, err)
	}
	if facts, err := x.ExtractFacts(context.Background(), "text", "src"); err != nil || len(facts) != 0 {
		t.Fatalf("expected nothing, got %v / %v", facts, err)
	}
}
