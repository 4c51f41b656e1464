package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"sensei/internal/config"
	"sensei/internal/embedding"
	"sensei/internal/logging"
	"sensei/internal/store"
)

// =============================================================================
// HYBRID RETRIEVER
// =============================================================================

// QAMatch is a curated question/answer pair matched against the query by
// embedding similarity.
type QAMatch struct {
	Pair       store.QAPair `json:"pair"`
	Similarity float64      `json:"similarity"`
}

// Bundle is the combined result of one retrieval: three independent sub-lists
// plus the classified topics. Partial marks that at least one sub-retrieval
// failed and its list is empty, not that nothing matched.
type Bundle struct {
	Query          string                `json:"query"`
	QueryEmbedding []float32             `json:"-"`
	Topics         []TopicMatch          `json:"topics"`
	Chunks         []store.ChunkEntry    `json:"chunks"`
	QAMatches      []QAMatch             `json:"qa_matches"`
	Knowledge      []store.KnowledgeItem `json:"knowledge"`
	Partial        bool                  `json:"partial"`
	Failures       []string              `json:"failures,omitempty"`
}

// TopicIDs returns the matched topic ids in confidence order.
func (b *Bundle) TopicIDs() []string {
	ids := make([]string, len(b.Topics))
	for i, t := range b.Topics {
		ids[i] = t.TopicID
	}
	return ids
}

// Empty reports whether no sub-retrieval produced anything.
func (b *Bundle) Empty() bool {
	return len(b.Chunks) == 0 && len(b.QAMatches) == 0 && len(b.Knowledge) == 0
}

// HybridRetriever gathers chunk candidates, QA matches, and knowledge-base
// entries for a query. The query is embedded exactly once per call; stored
// question embeddings are reused, never recomputed.
type HybridRetriever struct {
	store      *store.LocalStore
	engine     embedding.Engine
	classifier *Classifier
	cfg        config.RetrievalConfig
}

// NewHybridRetriever creates a retriever over the given collaborators.
func NewHybridRetriever(s *store.LocalStore, engine embedding.Engine, classifier *Classifier, cfg config.RetrievalConfig) *HybridRetriever {
	return &HybridRetriever{
		store:      s,
		engine:     engine,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Retrieve runs the three sub-retrievals concurrently and returns whatever
// succeeded. k is the chunk candidate count; callers that rerank downstream
// pass a larger k than they intend to keep. A sub-retrieval failure empties
// its list and sets Partial; only a failure of every path with no topics to
// fall back on is an error.
func (r *HybridRetriever) Retrieve(ctx context.Context, sessionID, query string, k int) (*Bundle, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	if k <= 0 {
		k = r.cfg.TopK
	}

	bundle := &Bundle{Query: query}

	var mu sync.Mutex
	fail := func(step string, err error) {
		logging.Get(logging.CategoryRetrieval).Warn("Sub-retrieval %s failed: %v", step, err)
		mu.Lock()
		bundle.Partial = true
		bundle.Failures = append(bundle.Failures, fmt.Sprintf("%s: %v", step, err))
		mu.Unlock()
	}

	// The query embedding feeds both vector paths; one computation serves
	// both. If it fails those paths degrade and KB lookup carries the bundle.
	queryVec, embedErr := r.engine.Embed(ctx, query)
	if embedErr != nil {
		fail("embed_query", embedErr)
	}
	bundle.QueryEmbedding = queryVec

	topics, err := r.classifier.Classify(ctx, sessionID, query)
	if err != nil {
		fail("topic_classification", err)
	}
	bundle.Topics = topics
	topicIDs := bundle.TopicIDs()

	stepTimeout := r.cfg.SubStepTimeoutDuration()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if embedErr != nil {
			return nil
		}
		stepCtx, cancel := context.WithTimeout(gctx, stepTimeout)
		defer cancel()
		chunks, err := r.store.SearchChunks(stepCtx, sessionID, queryVec, k)
		if err != nil {
			fail("chunk_search", err)
			return nil
		}
		mu.Lock()
		bundle.Chunks = chunks
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if embedErr != nil || len(topicIDs) == 0 {
			return nil
		}
		stepCtx, cancel := context.WithTimeout(gctx, stepTimeout)
		defer cancel()
		matches, err := r.matchQAPairs(stepCtx, sessionID, topicIDs, queryVec, k)
		if err != nil {
			fail("qa_match", err)
			return nil
		}
		mu.Lock()
		bundle.QAMatches = matches
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if len(topicIDs) == 0 {
			return nil
		}
		stepCtx, cancel := context.WithTimeout(gctx, stepTimeout)
		defer cancel()
		items, err := r.store.KnowledgeByTopics(stepCtx, sessionID, topicIDs)
		if err != nil {
			fail("kb_lookup", err)
			return nil
		}
		mu.Lock()
		bundle.Knowledge = items
		mu.Unlock()
		return nil
	})

	// Sub-retrieval errors are recorded, never returned.
	g.Wait()

	logging.Retrieval("Retrieved for session=%s: topics=%d chunks=%d qa=%d kb=%d partial=%v",
		sessionID, len(bundle.Topics), len(bundle.Chunks), len(bundle.QAMatches), len(bundle.Knowledge), bundle.Partial)

	return bundle, nil
}

// matchQAPairs ranks the topics' stored QA pairs against the query embedding.
// Pairs embedded at write time carry their question vectors; nothing is
// re-embedded here.
func (r *HybridRetriever) matchQAPairs(ctx context.Context, sessionID string, topicIDs []string, queryVec []float32, k int) ([]QAMatch, error) {
	pairs, err := r.store.QAPairsByTopics(ctx, sessionID, topicIDs)
	if err != nil {
		return nil, err
	}

	var matches []QAMatch
	for _, pair := range pairs {
		if len(pair.QuestionEmbedding) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, pair.QuestionEmbedding)
		if err != nil {
			logging.RetrievalDebug("Skipping QA pair %d: %v", pair.ID, err)
			continue
		}
		if sim < r.cfg.QAMatchThreshold {
			continue
		}
		matches = append(matches, QAMatch{Pair: pair, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// MaxKnowledgeConfidence exposes the KB confidence for the bundle's topics,
// used by the reject-branch fallback policy downstream.
func (r *HybridRetriever) MaxKnowledgeConfidence(ctx context.Context, sessionID string, topicIDs []string) (float64, error) {
	return r.store.MaxKnowledgeConfidence(ctx, sessionID, topicIDs)
}
