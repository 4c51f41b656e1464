package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sensei/internal/logging"
)

// =============================================================================
// QA PAIRS
// =============================================================================

// QAPair is a curated question/answer pair tagged with a topic. The question
// embedding is computed once at write time so query-time matching never
// re-embeds stored questions.
type QAPair struct {
	ID                int64
	SessionID         string
	TopicID           string
	Question          string
	Answer            string
	QuestionEmbedding []float32
}

// AddQAPairs stores QA pairs, embedding all questions in a single batched
// call. Per-pair embedding requests are deliberately not supported.
func (s *LocalStore) AddQAPairs(ctx context.Context, sessionID string, pairs []QAPair) ([]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AddQAPairs")
	defer timer.Stop()

	if len(pairs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingEngine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}

	questions := make([]string, len(pairs))
	for i, p := range pairs {
		questions[i] = p.Question
	}

	vectors, err := s.embeddingEngine.EmbedBatch(ctx, questions)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-embed QA questions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin QA insert: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO qa_pairs (session_id, topic_id, question, answer, question_embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to prepare QA insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(pairs))
	for i, p := range pairs {
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to serialize question embedding: %w", err)
		}

		res, err := stmt.Exec(sessionID, p.TopicID, p.Question, p.Answer, string(embJSON))
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert QA pair %d: %w", i, err)
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit QA batch: %w", err)
	}

	logging.StoreDebug("Stored %d QA pairs for session=%s", len(ids), sessionID)
	return ids, nil
}

// QAPairsByTopics loads QA pairs (with their stored question embeddings) for
// the given topics. Pairs whose embedding failed to round-trip are skipped.
func (s *LocalStore) QAPairsByTopics(ctx context.Context, sessionID string, topicIDs []string) ([]QAPair, error) {
	timer := logging.StartTimer(logging.CategoryStore, "QAPairsByTopics")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(topicIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(topicIDs)), ",")
	args := make([]interface{}, 0, len(topicIDs)+1)
	args = append(args, sessionID)
	for _, id := range topicIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, topic_id, question, answer, question_embedding FROM qa_pairs WHERE session_id = ? AND topic_id IN (%s)",
		placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("QA pair query failed: %w", err)
	}
	defer rows.Close()

	var pairs []QAPair
	for rows.Next() {
		var p QAPair
		var embJSON string
		if err := rows.Scan(&p.ID, &p.TopicID, &p.Question, &p.Answer, &embJSON); err != nil {
			continue
		}
		p.SessionID = sessionID
		if err := json.Unmarshal([]byte(embJSON), &p.QuestionEmbedding); err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping QA pair %d: bad embedding: %v", p.ID, err)
			continue
		}
		pairs = append(pairs, p)
	}

	logging.StoreDebug("Loaded %d QA pairs for session=%s topics=%v", len(pairs), sessionID, topicIDs)
	return pairs, nil
}
