//go:build sqlite_vec && cgo

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"sensei/internal/logging"
)

const vecEnabled = true

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// chunk KNN can run against a vec0 index instead of the pure-Go scan.
	vec.Auto()
}

// ensureVecIndex creates the vec0 virtual table once the embedding
// dimensionality is known, which is at the first chunk write. Creation
// failure is not fatal: search stays on the cosine scan. Caller holds s.mu.
func (s *LocalStore) ensureVecIndex(dims int) {
	if s.vecReady {
		return
	}
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
		embedding float[%d],
		chunk_id INTEGER,
		session_id TEXT
	)`, dims)
	if _, err := s.db.Exec(ddl); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to create vec_chunks index, staying on cosine scan: %v", err)
		return
	}
	logging.StoreDebug("vec_chunks index ready with %d dimensions", dims)
	s.vecReady = true
}

// indexChunkVec mirrors one chunk row into the vec0 index inside the caller's
// insert transaction.
func (s *LocalStore) indexChunkVec(tx *sql.Tx, id int64, sessionID string, vector []float32) error {
	if !s.vecReady {
		return nil
	}
	_, err := tx.Exec("INSERT INTO vec_chunks (embedding, chunk_id, session_id) VALUES (?, ?, ?)",
		encodeVecBlob(vector), id, sessionID)
	return err
}

// searchChunksVec runs KNN through vec_distance_cosine and hydrates the
// winning rows from the chunks table. Caller holds s.mu.
func (s *LocalStore) searchChunksVec(ctx context.Context, sessionID string, queryVec []float32, k int) ([]ChunkEntry, error) {
	if !s.vecReady {
		return nil, fmt.Errorf("vec_chunks index not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_chunks
		WHERE session_id = ?
		ORDER BY distance ASC
		LIMIT ?`,
		encodeVecBlob(queryVec), sessionID, k)
	if err != nil {
		return nil, fmt.Errorf("vec chunk search failed: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id       int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vec chunk search failed: %w", err)
	}

	results := make([]ChunkEntry, 0, len(hits))
	for _, h := range hits {
		var entry ChunkEntry
		var metaJSON sql.NullString
		err := s.db.QueryRowContext(ctx,
			"SELECT id, content, metadata FROM chunks WHERE id = ?", h.id).
			Scan(&entry.ID, &entry.Content, &metaJSON)
		if err != nil {
			continue
		}
		entry.SessionID = sessionID
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &entry.Metadata)
		}
		entry.Similarity = 1 - h.distance
		results = append(results, entry)
	}

	logging.StoreDebug("searchChunksVec returned %d results for session=%s (k=%d)", len(results), sessionID, k)
	return results, nil
}

func encodeVecBlob(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
