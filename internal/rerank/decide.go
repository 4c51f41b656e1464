package rerank

import (
	"context"
	"sort"

	"sensei/internal/config"
	"sensei/internal/logging"
)

// =============================================================================
// DECISION LAYER
// =============================================================================

// Action is the three-way corrective decision over a candidate set.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionFilter Action = "FILTER"
	ActionReject Action = "REJECT"
)

// Candidate is one retrieved chunk entering the decision. Similarity is the
// upstream vector score; Score is filled by the cross-encoder. Both survive
// into the outcome so the two signals stay comparable downstream.
type Candidate struct {
	ChunkID    int64   `json:"chunk_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Outcome is the decision plus the surviving candidates, ordered by rerank
// score descending.
type Outcome struct {
	Action   Action      `json:"action"`
	Accepted []Candidate `json:"accepted"`
	MaxScore float64     `json:"max_score"`
	AvgScore float64     `json:"avg_score"`

	// Degraded is set when the cross-encoder was unavailable and vector
	// similarity stood in for relevance.
	Degraded bool `json:"degraded,omitempty"`
}

// Decider scores candidates and applies the corrective decision rule.
type Decider struct {
	cfg    config.RerankerConfig
	scorer CrossEncoder
}

// NewDecider creates a decider. A nil scorer means every call degrades to
// similarity scores, which is how the layer runs with reranking disabled.
func NewDecider(cfg config.RerankerConfig, scorer CrossEncoder) *Decider {
	return &Decider{cfg: cfg, scorer: scorer}
}

// Rerank scores the candidates against the query and decides. A scorer
// failure is recoverable: the decision proceeds on the upstream similarity
// scores with Degraded set, never failing the request over a reranker outage.
func (d *Decider) Rerank(ctx context.Context, query string, candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return Outcome{Action: ActionReject}
	}

	scored := make([]Candidate, len(candidates))
	copy(scored, candidates)

	degraded := false
	if d.scorer == nil {
		degraded = true
	} else {
		passages := make([]string, len(scored))
		for i, c := range scored {
			passages[i] = c.Content
		}
		scores, err := d.scorer.Score(ctx, query, passages)
		switch {
		case err != nil:
			logging.Get(logging.CategoryRerank).Warn("Cross-encoder failed, degrading to similarity scores: %v", err)
			degraded = true
		case len(scores) != len(scored):
			logging.Get(logging.CategoryRerank).Warn("Cross-encoder returned %d scores for %d passages, degrading to similarity scores",
				len(scores), len(scored))
			degraded = true
		default:
			for i := range scored {
				scored[i].Score = scores[i]
			}
		}
	}
	if degraded {
		for i := range scored {
			scored[i].Score = scored[i].Similarity
		}
	}

	outcome := Decide(d.cfg, scored)
	outcome.Degraded = degraded

	logging.Rerank("Decision %s for query %q: %d/%d kept (max=%.3f avg=%.3f degraded=%v)",
		outcome.Action, truncate(query, 60), len(outcome.Accepted), len(candidates),
		outcome.MaxScore, outcome.AvgScore, degraded)

	return outcome
}

// Decide applies the three-way rule to already-scored candidates. Pure: the
// same scores and thresholds always produce the same action and the same
// accepted set.
//
// The accept branch filters at the filter threshold rather than keeping every
// candidate; with max >= correct >= filter at least the top candidate always
// qualifies, so accept never returns an empty set.
func Decide(cfg config.RerankerConfig, candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return Outcome{Action: ActionReject}
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	var sum float64
	for _, c := range ordered {
		sum += c.Score
	}
	maxScore := ordered[0].Score
	avgScore := sum / float64(len(ordered))

	outcome := Outcome{MaxScore: maxScore, AvgScore: avgScore}

	switch {
	case maxScore >= cfg.CorrectThreshold:
		outcome.Action = ActionAccept
		outcome.Accepted = aboveThreshold(ordered, cfg.FilterThreshold)
		if len(outcome.Accepted) == 0 {
			outcome.Accepted = ordered[:1]
		}
	case maxScore < cfg.IncorrectThreshold:
		outcome.Action = ActionReject
	default:
		outcome.Action = ActionFilter
		outcome.Accepted = aboveThreshold(ordered, cfg.FilterThreshold)
	}

	return outcome
}

// NeedsKBFallback reports whether rejected chunks should be replaced by
// knowledge-base content: the decision rejected everything but curated
// knowledge for the matched topics is confident enough to stand in. Vector
// similarity and cross-encoder relevance disagree sharply on tabular or
// heavily formatted text, so an all-reject is not proof that no material
// exists.
func (d *Decider) NeedsKBFallback(outcome Outcome, kbConfidence float64) bool {
	return outcome.Action == ActionReject && kbConfidence >= d.cfg.KBFallbackFloor
}

func aboveThreshold(ordered []Candidate, threshold float64) []Candidate {
	var kept []Candidate
	for _, c := range ordered {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
