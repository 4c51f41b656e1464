// Package retrieval implements the hybrid knowledge retriever: topic
// classification over the session's topic catalog, chunk vector search,
// batched question/answer matching, and knowledge-base lookup, gathered
// concurrently with per-sub-step failure isolation.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"sensei/internal/llm"
	"sensei/internal/logging"
	"sensei/internal/store"
)

// =============================================================================
// TOPIC CLASSIFICATION
// =============================================================================

// TopicMatch is a course topic the query was classified into.
type TopicMatch struct {
	TopicID    string  `json:"topic_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// llmConfidence is assigned to topics picked by the LLM classifier, which
// reports membership but not a usable score.
const llmConfidence = 0.75

// Classifier maps a learner query to zero or more topics from the session
// catalog. Keyword overlap runs first; the LLM classifier only runs when
// keyword confidence is too low to trust.
type Classifier struct {
	store     *store.LocalStore
	llm       llm.Client
	threshold float64
}

// NewClassifier creates a topic classifier. The LLM client may be nil, in
// which case classification is keyword-only.
func NewClassifier(s *store.LocalStore, client llm.Client, keywordThreshold float64) *Classifier {
	return &Classifier{store: s, llm: client, threshold: keywordThreshold}
}

// Classify returns the matched topics ordered by confidence descending. An
// empty result is a valid outcome: not every query belongs to a topic.
func (c *Classifier) Classify(ctx context.Context, sessionID, query string) ([]TopicMatch, error) {
	topics, err := c.store.TopicsForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic catalog: %w", err)
	}
	if len(topics) == 0 {
		return nil, nil
	}

	matches := keywordMatches(topics, query)

	best := 0.0
	if len(matches) > 0 {
		best = matches[0].Confidence
	}
	if best >= c.threshold || c.llm == nil {
		logging.RetrievalDebug("Topic classification (keyword): %d topics, best=%.2f", len(matches), best)
		return matches, nil
	}

	// Keyword overlap was inconclusive. Ask the LLM, but keep the keyword
	// result if the call fails: a degraded classification beats none.
	llmMatches, err := c.classifyWithLLM(ctx, topics, query)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("LLM topic classification failed, keeping keyword result: %v", err)
		return matches, nil
	}
	logging.RetrievalDebug("Topic classification (llm): %d topics", len(llmMatches))
	return llmMatches, nil
}

// keywordMatches scores each topic by the fraction of its keywords present in
// the query, ordered by confidence descending.
func keywordMatches(topics []store.Topic, query string) []TopicMatch {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var matches []TopicMatch
	for _, topic := range topics {
		if len(topic.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range topic.Keywords {
			if queryTokens[strings.ToLower(kw)] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, TopicMatch{
			TopicID:    topic.TopicID,
			Name:       topic.Name,
			Confidence: float64(hits) / float64(len(topic.Keywords)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

func (c *Classifier) classifyWithLLM(ctx context.Context, topics []store.Topic, query string) ([]TopicMatch, error) {
	var catalog strings.Builder
	for _, topic := range topics {
		fmt.Fprintf(&catalog, "- %s: %s (keywords: %s)\n", topic.TopicID, topic.Name, strings.Join(topic.Keywords, ", "))
	}

	system := "You classify student questions into course topics. " +
		"Reply with the matching topic ids only, comma-separated. Reply NONE if no topic matches."
	prompt := fmt.Sprintf("Topics:\n%s\nQuestion: %s\n\nMatching topic ids:", catalog.String(), query)

	reply, err := c.llm.CompleteWithSystem(ctx, system, prompt)
	if err != nil {
		return nil, err
	}

	known := make(map[string]store.Topic, len(topics))
	for _, topic := range topics {
		known[topic.TopicID] = topic
	}

	var matches []TopicMatch
	for _, raw := range strings.Split(reply, ",") {
		id := strings.TrimSpace(raw)
		topic, ok := known[id]
		if !ok {
			continue
		}
		matches = append(matches, TopicMatch{
			TopicID:    topic.TopicID,
			Name:       topic.Name,
			Confidence: llmConfidence,
		})
	}
	return matches, nil
}

// tokenize lowercases the query and returns its content words as a set.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		tokens[w] = true
	}
	return tokens
}

// stopwords are query words too common to signal a topic.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "does": true, "did": true, "can": true, "could": true,
	"would": true, "should": true, "with": true, "that": true, "this": true,
	"these": true, "those": true, "about": true, "between": true,
	"explain": true, "describe": true, "define": true, "tell": true,
	"mean": true, "means": true, "please": true, "help": true,
	"understand": true, "difference": true, "example": true,
}
