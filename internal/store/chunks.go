package store

import (
	"context"
	"encoding/json"
	"fmt"

	"sensei/internal/embedding"
	"sensei/internal/logging"
)

// =============================================================================
// CHUNK VECTOR INDEX
// =============================================================================

// ChunkEntry represents a retrievable fragment of ingested course material.
type ChunkEntry struct {
	ID         int64
	SessionID  string
	Content    string
	Metadata   map[string]interface{}
	Similarity float64 // cosine similarity from the last search, 0 otherwise
}

// AddChunk stores a single chunk with its embedding.
func (s *LocalStore) AddChunk(ctx context.Context, sessionID, content string, metadata map[string]interface{}) (int64, error) {
	ids, err := s.AddChunkBatch(ctx, sessionID, []string{content}, []map[string]interface{}{metadata})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddChunkBatch stores chunks with embeddings generated in one batched call.
func (s *LocalStore) AddChunkBatch(ctx context.Context, sessionID string, contents []string, metadatas []map[string]interface{}) ([]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AddChunkBatch")
	defer timer.Stop()

	if len(contents) == 0 {
		return nil, nil
	}
	if len(metadatas) != len(contents) {
		return nil, fmt.Errorf("metadata count %d does not match content count %d", len(metadatas), len(contents))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingEngine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}

	vectors, err := s.embeddingEngine.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunk batch: %w", err)
	}

	if vecEnabled && len(vectors) > 0 {
		s.ensureVecIndex(len(vectors[0]))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin chunk insert: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (session_id, content, embedding, metadata) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(contents))
	for i, content := range contents {
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to serialize embedding: %w", err)
		}
		metaJSON, _ := json.Marshal(metadatas[i])

		res, err := stmt.Exec(sessionID, content, string(embJSON), string(metaJSON))
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		id, _ := res.LastInsertId()
		if err := s.indexChunkVec(tx, id, sessionID, vectors[i]); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunk batch: %w", err)
	}

	logging.StoreDebug("Stored %d chunks for session=%s", len(ids), sessionID)
	return ids, nil
}

// SearchChunks performs a k-nearest-neighbor search over the session's chunk
// index using a precomputed query embedding. The caller embeds the query
// exactly once per request and reuses the vector.
func (s *LocalStore) SearchChunks(ctx context.Context, sessionID string, queryVec []float32, k int) ([]ChunkEntry, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchChunks")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 10
	}

	if vecEnabled && s.vecReady {
		results, err := s.searchChunksVec(ctx, sessionID, queryVec, k)
		if err == nil {
			return results, nil
		}
		logging.Get(logging.CategoryStore).Warn("vec index search failed, falling back to cosine scan: %v", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, embedding, metadata FROM chunks WHERE session_id = ? AND embedding IS NOT NULL",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("chunk search query failed: %w", err)
	}
	defer rows.Close()

	var entries []ChunkEntry
	var vectors [][]float32
	for rows.Next() {
		var entry ChunkEntry
		var embJSON, metaJSON string
		if err := rows.Scan(&entry.ID, &entry.Content, &embJSON, &metaJSON); err != nil {
			continue
		}
		entry.SessionID = sessionID

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}

		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		}

		entries = append(entries, entry)
		vectors = append(vectors, vec)
	}

	matches, err := embedding.FindTopK(queryVec, vectors, k)
	if err != nil {
		return nil, fmt.Errorf("chunk similarity ranking failed: %w", err)
	}

	results := make([]ChunkEntry, len(matches))
	for i, m := range matches {
		results[i] = entries[m.Index]
		results[i].Similarity = m.Similarity
	}

	logging.StoreDebug("SearchChunks returned %d results for session=%s (k=%d)", len(results), sessionID, k)
	return results, nil
}

// ChunkCount returns the number of chunks ingested for a session.
func (s *LocalStore) ChunkCount(sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}
