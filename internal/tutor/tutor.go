// Package tutor orchestrates one question/answer turn: hybrid retrieval,
// corrective reranking, context merging, pedagogical personalization, and the
// generation call, plus reaction ingestion into the comprehension tracker.
package tutor

import (
	"context"
	"errors"
	"fmt"

	"sensei/internal/comprehension"
	"sensei/internal/config"
	"sensei/internal/llm"
	"sensei/internal/logging"
	"sensei/internal/pedagogy"
	"sensei/internal/rerank"
	"sensei/internal/retrieval"
)

// ErrNoMaterial is the designed terminal state of the decision layer: every
// chunk was rejected and no knowledge-base content is confident enough to
// stand in. The caller surfaces it instead of a fabricated answer.
var ErrNoMaterial = errors.New("no sufficient material to answer this question")

// Answer is one personalized answer with the evidence that produced it.
type Answer struct {
	Text           string                 `json:"text"`
	Topics         []retrieval.TopicMatch `json:"topics"`
	Decision       rerank.Outcome         `json:"decision"`
	Guidance       pedagogy.Guidance      `json:"guidance"`
	Partial        bool                   `json:"partial"`
	UsedKBFallback bool                   `json:"used_kb_fallback"`
}

// Tutor is the per-request orchestrator. Stateless between requests except
// for the comprehension tracker's persisted records.
type Tutor struct {
	cfg       *config.Config
	retriever *retrieval.HybridRetriever
	decider   *rerank.Decider
	tracker   *comprehension.Tracker
	generator llm.Client
}

// New creates a tutor over its collaborators.
func New(cfg *config.Config, r *retrieval.HybridRetriever, d *rerank.Decider, t *comprehension.Tracker, g llm.Client) *Tutor {
	return &Tutor{
		cfg:       cfg,
		retriever: r,
		decider:   d,
		tracker:   t,
		generator: g,
	}
}

// Ask answers one learner question. Comprehension state is read for
// personalization but never written here; writes happen only through
// RecordReaction, after the learner has seen the answer.
func (t *Tutor) Ask(ctx context.Context, learnerID, sessionID, question string) (*Answer, error) {
	timer := logging.StartTimer(logging.CategoryTutor, "Ask")
	defer timer.Stop()

	record, err := t.tracker.Get(ctx, learnerID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comprehension record: %w", err)
	}

	// Over-fetch when reranking so the decision layer has candidates to
	// discard without starving the context.
	candidateK := t.cfg.Retrieval.TopK
	if t.cfg.Reranker.Enabled {
		candidateK *= 2
	}

	bundle, err := t.retriever.Retrieve(ctx, sessionID, question, candidateK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	candidates := make([]rerank.Candidate, len(bundle.Chunks))
	for i, chunk := range bundle.Chunks {
		candidates[i] = rerank.Candidate{
			ChunkID:    chunk.ID,
			Content:    chunk.Content,
			Similarity: chunk.Similarity,
		}
	}
	outcome := t.decider.Rerank(ctx, question, candidates)

	usedFallback := false
	if outcome.Action == rerank.ActionReject {
		kbConf := 0.0
		if ids := bundle.TopicIDs(); len(ids) > 0 {
			kbConf, err = t.retriever.MaxKnowledgeConfidence(ctx, sessionID, ids)
			if err != nil {
				logging.Get(logging.CategoryTutor).Warn("KB confidence lookup failed: %v", err)
			}
		}
		if t.decider.NeedsKBFallback(outcome, kbConf) && len(bundle.Knowledge) > 0 {
			usedFallback = true
			logging.Tutor("All chunks rejected, substituting %d knowledge item(s) (confidence %.2f)",
				len(bundle.Knowledge), kbConf)
		} else if len(bundle.QAMatches) == 0 {
			logging.Tutor("No material for learner=%s session=%s question=%q", learnerID, sessionID, question)
			logging.AuditInteraction(logging.AuditNoAnswer, learnerID, sessionID, map[string]interface{}{
				"question": question,
			})
			return nil, ErrNoMaterial
		}
	}

	// The best curated answer doubles as the draft for load estimation.
	draft := ""
	if len(bundle.QAMatches) > 0 {
		draft = bundle.QAMatches[0].Pair.Answer
	}
	guidance := pedagogy.Personalize(record, question, draft)

	// Client disconnects land here, after retrieval but before the expensive
	// generation call. Nothing has been mutated at this point.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request cancelled before generation: %w", err)
	}

	prompt := buildPrompt(question, bundle, outcome)
	system := buildSystemPrompt(guidance)

	genCtx, cancel := context.WithTimeout(ctx, t.cfg.Generation.TimeoutDuration())
	defer cancel()
	text, err := t.generator.CompleteWithSystem(genCtx, system, prompt)
	if err != nil {
		// Fatal to the request: a partial or empty answer must not pass as
		// a valid one.
		logging.AuditInteraction(logging.AuditGenFailed, learnerID, sessionID, map[string]interface{}{
			"question": question,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	logging.Tutor("Answered learner=%s session=%s: action=%s fallback=%v partial=%v",
		learnerID, sessionID, outcome.Action, usedFallback, bundle.Partial)
	logging.AuditInteraction(logging.AuditAnswer, learnerID, sessionID, map[string]interface{}{
		"question":    question,
		"action":      string(outcome.Action),
		"kb_fallback": usedFallback,
		"partial":     bundle.Partial,
	})

	return &Answer{
		Text:           text,
		Topics:         bundle.Topics,
		Decision:       outcome,
		Guidance:       guidance,
		Partial:        bundle.Partial,
		UsedKBFallback: usedFallback,
	}, nil
}

// RecordReaction ingests the learner's reaction to the last answer and
// returns the updated comprehension record.
func (t *Tutor) RecordReaction(ctx context.Context, learnerID, sessionID, rawReaction string) (comprehension.Record, error) {
	reaction, err := comprehension.ParseReaction(rawReaction)
	if err != nil {
		return comprehension.Record{}, err
	}
	record, err := t.tracker.RecordReaction(ctx, learnerID, sessionID, reaction)
	if err != nil {
		return record, err
	}
	logging.AuditInteraction(logging.AuditReaction, learnerID, sessionID, map[string]interface{}{
		"reaction": string(reaction),
		"score":    record.Score,
		"level":    record.Level.String(),
	})
	return record, nil
}

// Comprehension exposes the learner's current record for read-only surfaces.
func (t *Tutor) Comprehension(ctx context.Context, learnerID, sessionID string) (comprehension.Stats, error) {
	return t.tracker.Stats(ctx, learnerID, sessionID)
}
