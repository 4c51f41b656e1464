package store

import (
	"context"
	"encoding/json"
	"fmt"

	"sensei/internal/logging"
)

// =============================================================================
// CURATED KNOWLEDGE BASE
// =============================================================================

// KnowledgeItem is a curated knowledge-base entry looked up by topic id.
// Confidence is authored per row; no similarity computation is involved.
type KnowledgeItem struct {
	ID         int64
	SessionID  string
	TopicID    string
	Title      string
	Content    string
	Confidence float64
}

// AddKnowledgeItem stores a curated knowledge-base entry.
func (s *LocalStore) AddKnowledgeItem(item KnowledgeItem) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AddKnowledgeItem")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO knowledge_base (session_id, topic_id, title, content, confidence) VALUES (?, ?, ?, ?, ?)",
		item.SessionID, item.TopicID, item.Title, item.Content, item.Confidence,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store knowledge item: %w", err)
	}
	return res.LastInsertId()
}

// KnowledgeByTopics returns knowledge-base entries for the given topics,
// highest confidence first.
func (s *LocalStore) KnowledgeByTopics(ctx context.Context, sessionID string, topicIDs []string) ([]KnowledgeItem, error) {
	timer := logging.StartTimer(logging.CategoryStore, "KnowledgeByTopics")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(topicIDs) == 0 {
		return nil, nil
	}

	var items []KnowledgeItem
	for _, topicID := range topicIDs {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, topic_id, title, content, confidence FROM knowledge_base WHERE session_id = ? AND topic_id = ? ORDER BY confidence DESC",
			sessionID, topicID)
		if err != nil {
			return nil, fmt.Errorf("knowledge lookup failed for topic %s: %w", topicID, err)
		}
		for rows.Next() {
			var item KnowledgeItem
			if err := rows.Scan(&item.ID, &item.TopicID, &item.Title, &item.Content, &item.Confidence); err != nil {
				continue
			}
			item.SessionID = sessionID
			items = append(items, item)
		}
		rows.Close()
	}

	logging.StoreDebug("Loaded %d knowledge items for session=%s topics=%v", len(items), sessionID, topicIDs)
	return items, nil
}

// MaxKnowledgeConfidence returns the highest knowledge-base confidence across
// the given topics, or 0 when no entries exist. Used by the reranking fallback
// policy to decide whether KB content can substitute for rejected chunks.
func (s *LocalStore) MaxKnowledgeConfidence(ctx context.Context, sessionID string, topicIDs []string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(topicIDs) == 0 {
		return 0, nil
	}

	max := 0.0
	for _, topicID := range topicIDs {
		var conf float64
		err := s.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(confidence), 0) FROM knowledge_base WHERE session_id = ? AND topic_id = ?",
			sessionID, topicID).Scan(&conf)
		if err != nil {
			return 0, fmt.Errorf("knowledge confidence lookup failed: %w", err)
		}
		if conf > max {
			max = conf
		}
	}
	return max, nil
}

// =============================================================================
// TOPIC CATALOG
// =============================================================================

// Topic is a session-scoped course topic with matching keywords.
type Topic struct {
	TopicID   string
	SessionID string
	Name      string
	Keywords  []string
}

// AddTopic registers a topic in the session's catalog.
func (s *LocalStore) AddTopic(topic Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kwJSON, err := json.Marshal(topic.Keywords)
	if err != nil {
		return fmt.Errorf("failed to serialize topic keywords: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO topics (topic_id, session_id, name, keywords) VALUES (?, ?, ?, ?)",
		topic.TopicID, topic.SessionID, topic.Name, string(kwJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store topic: %w", err)
	}
	return nil
}

// TopicsForSession loads the session's topic catalog.
func (s *LocalStore) TopicsForSession(ctx context.Context, sessionID string) ([]Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT topic_id, name, keywords FROM topics WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("topic catalog query failed: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var topic Topic
		var kwJSON string
		if err := rows.Scan(&topic.TopicID, &topic.Name, &kwJSON); err != nil {
			continue
		}
		topic.SessionID = sessionID
		if err := json.Unmarshal([]byte(kwJSON), &topic.Keywords); err != nil {
			logging.Get(logging.CategoryStore).Warn("Topic %s has bad keywords payload: %v", topic.TopicID, err)
			continue
		}
		topics = append(topics, topic)
	}

	return topics, nil
}
