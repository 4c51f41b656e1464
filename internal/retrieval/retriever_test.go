package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"sensei/internal/config"
	"sensei/internal/store"
)

// countingEngine is a deterministic embedding engine that counts calls, so
// tests can pin down exactly how many embedding computations a path issues.
type countingEngine struct {
	EmbedFunc  func(ctx context.Context, text string) ([]float32, error)
	embedCalls atomic.Int64
}

func (e *countingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.embedCalls.Add(1)
	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

func (e *countingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEngine) Dimensions() int { return 4 }
func (e *countingEngine) Name() string    { return "counting" }

type mockLLM struct {
	reply string
	err   error
	calls int
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	m.calls++
	return m.reply, m.err
}

func retrievalConfig() config.RetrievalConfig {
	return config.DefaultConfig().Retrieval
}

func newTestStore(t *testing.T, engine *countingEngine) *store.LocalStore {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create local store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.SetEmbeddingEngine(engine)
	return s
}

func seedSession(t *testing.T, s *store.LocalStore) {
	t.Helper()
	ctx := context.Background()

	if err := s.AddTopic(store.Topic{
		TopicID: "t-osmosis", SessionID: "bio-101", Name: "Osmosis",
		Keywords: []string{"osmosis", "membrane", "water"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTopic(store.Topic{
		TopicID: "t-atp", SessionID: "bio-101", Name: "Cellular Energy",
		Keywords: []string{"atp", "mitochondria", "respiration"},
	}); err != nil {
		t.Fatal(err)
	}

	contents := []string{"osmosis moves water across membranes", "atp powers the cell"}
	if _, err := s.AddChunkBatch(ctx, "bio-101", contents, make([]map[string]interface{}, 2)); err != nil {
		t.Fatal(err)
	}

	pairs := []store.QAPair{
		{TopicID: "t-osmosis", Question: "What is osmosis?", Answer: "Water diffusion across a membrane."},
		{TopicID: "t-osmosis", Question: "Why does water cross membranes?", Answer: "Concentration gradients."},
	}
	if _, err := s.AddQAPairs(ctx, "bio-101", pairs); err != nil {
		t.Fatal(err)
	}

	if _, err := s.AddKnowledgeItem(store.KnowledgeItem{
		SessionID: "bio-101", TopicID: "t-osmosis", Title: "Osmosis basics",
		Content: "Curated overview of osmosis.", Confidence: 0.9,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyKeywordOverlap(t *testing.T) {
	engine := &countingEngine{}
	s := newTestStore(t, engine)
	seedSession(t, s)

	c := NewClassifier(s, nil, retrievalConfig().TopicKeywordThreshold)
	matches, err := c.Classify(context.Background(), "bio-101", "What is osmosis and how does water move?")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic match, got %d: %+v", len(matches), matches)
	}
	if matches[0].TopicID != "t-osmosis" {
		t.Errorf("expected t-osmosis, got %s", matches[0].TopicID)
	}
	if matches[0].Confidence <= 0.35 {
		t.Errorf("two of three keywords should clear the threshold, got %v", matches[0].Confidence)
	}
}

func TestClassifyLLMFallback(t *testing.T) {
	engine := &countingEngine{}
	s := newTestStore(t, engine)
	seedSession(t, s)

	client := &mockLLM{reply: "t-atp, t-unknown"}
	c := NewClassifier(s, client, retrievalConfig().TopicKeywordThreshold)

	// No keyword overlap at all, so the LLM decides.
	matches, err := c.Classify(context.Background(), "bio-101", "where does the powerhouse get its fuel")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected one LLM call, got %d", client.calls)
	}
	if len(matches) != 1 || matches[0].TopicID != "t-atp" {
		t.Errorf("expected only the known topic t-atp, got %+v", matches)
	}
}

func TestClassifyLLMFailureKeepsKeywordResult(t *testing.T) {
	engine := &countingEngine{}
	s := newTestStore(t, engine)
	seedSession(t, s)

	client := &mockLLM{err: errors.New("llm down")}
	c := NewClassifier(s, client, 0.9) // force the fallback path

	matches, err := c.Classify(context.Background(), "bio-101", "What is osmosis?")
	if err != nil {
		t.Fatalf("LLM failure must not fail classification: %v", err)
	}
	if len(matches) != 1 || matches[0].TopicID != "t-osmosis" {
		t.Errorf("keyword result should survive the LLM outage, got %+v", matches)
	}
}

func TestRetrieveGathersAllPaths(t *testing.T) {
	engine := &countingEngine{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			switch text {
			case "osmosis moves water across membranes", "What is osmosis?":
				return []float32{1, 0, 0, 0}, nil
			case "What is osmosis in the membrane?":
				return []float32{0.98, 0.02, 0, 0}, nil
			}
			return []float32{0, 1, 0, 0}, nil
		},
	}
	s := newTestStore(t, engine)
	seedSession(t, s)

	r := NewHybridRetriever(s, engine, NewClassifier(s, nil, 0.35), retrievalConfig())

	before := engine.embedCalls.Load()
	bundle, err := r.Retrieve(context.Background(), "bio-101", "What is osmosis in the membrane?", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	// The query is embedded exactly once; stored question embeddings are
	// reused for QA matching.
	if calls := engine.embedCalls.Load() - before; calls != 1 {
		t.Errorf("retrieval must embed the query exactly once, got %d calls", calls)
	}

	if bundle.Partial {
		t.Errorf("unexpected partial bundle: %v", bundle.Failures)
	}
	if len(bundle.Chunks) == 0 {
		t.Error("expected chunk candidates")
	}
	if len(bundle.QAMatches) != 1 {
		t.Fatalf("expected 1 QA match above threshold, got %d", len(bundle.QAMatches))
	}
	if bundle.QAMatches[0].Pair.Question != "What is osmosis?" {
		t.Errorf("wrong QA match: %q", bundle.QAMatches[0].Pair.Question)
	}
	if len(bundle.Knowledge) != 1 {
		t.Errorf("expected 1 knowledge item, got %d", len(bundle.Knowledge))
	}
}

func TestRetrievePartialOnEmbeddingFailure(t *testing.T) {
	failing := false
	engine := &countingEngine{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if failing {
				return nil, errors.New("embedding service unavailable")
			}
			return []float32{1, 0, 0, 0}, nil
		},
	}
	s := newTestStore(t, engine)
	seedSession(t, s)

	r := NewHybridRetriever(s, engine, NewClassifier(s, nil, 0.35), retrievalConfig())

	failing = true
	bundle, err := r.Retrieve(context.Background(), "bio-101", "What is osmosis?", 5)
	if err != nil {
		t.Fatalf("embedding failure must degrade, not fail: %v", err)
	}
	if !bundle.Partial {
		t.Fatal("bundle must be marked partial")
	}
	if len(bundle.Chunks) != 0 || len(bundle.QAMatches) != 0 {
		t.Error("vector paths must be empty when the query embedding failed")
	}
	// KB lookup is topic-driven and survives.
	if len(bundle.Knowledge) != 1 {
		t.Errorf("knowledge lookup should still succeed, got %d items", len(bundle.Knowledge))
	}
}

func TestQAMatchOrderMatchesIndividualSimilarities(t *testing.T) {
	engine := &countingEngine{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			switch text {
			case "What is osmosis?":
				return []float32{0.9, 0.1, 0, 0}, nil
			case "Why does water cross membranes?":
				return []float32{0.7, 0.3, 0, 0}, nil
			}
			return []float32{1, 0, 0, 0}, nil
		},
	}
	s := newTestStore(t, engine)
	seedSession(t, s)

	cfg := retrievalConfig()
	cfg.QAMatchThreshold = 0.1
	r := NewHybridRetriever(s, engine, NewClassifier(s, nil, 0.35), cfg)

	bundle, err := r.Retrieve(context.Background(), "bio-101", "osmosis water membrane", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(bundle.QAMatches) != 2 {
		t.Fatalf("expected both QA pairs above the low threshold, got %d", len(bundle.QAMatches))
	}
	if bundle.QAMatches[0].Similarity < bundle.QAMatches[1].Similarity {
		t.Error("QA matches must be ordered by similarity descending")
	}
	if bundle.QAMatches[0].Pair.Question != "What is osmosis?" {
		t.Errorf("closest question should rank first, got %q", bundle.QAMatches[0].Pair.Question)
	}
}

func TestBundleHelpers(t *testing.T) {
	b := &Bundle{Topics: []TopicMatch{{TopicID: "a"}, {TopicID: "b"}}}
	ids := b.TopicIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("TopicIDs order must follow topic order, got %v", ids)
	}
	if !b.Empty() {
		t.Error("bundle with no retrieved content is empty")
	}
	b.Knowledge = []store.KnowledgeItem{{}}
	if b.Empty() {
		t.Error("bundle with knowledge is not empty")
	}
}
