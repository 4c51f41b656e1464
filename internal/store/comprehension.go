package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sensei/internal/logging"
)

// =============================================================================
// COMPREHENSION RECORDS
// =============================================================================

// ComprehensionRow is the persisted form of a learner's comprehension record.
// The history column holds the serialized feedback history; the comprehension
// package owns its schema.
type ComprehensionRow struct {
	LearnerID string
	SessionID string
	Score     float64
	History   string
	UpdatedAt time.Time
}

// ErrNoComprehension is returned when no record exists for a (learner, session).
var ErrNoComprehension = fmt.Errorf("no comprehension record")

// GetComprehension reads the comprehension record for a (learner, session).
func (s *LocalStore) GetComprehension(ctx context.Context, learnerID, sessionID string) (ComprehensionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row ComprehensionRow
	err := s.db.QueryRowContext(ctx,
		"SELECT learner_id, session_id, score, history, updated_at FROM comprehension WHERE learner_id = ? AND session_id = ?",
		learnerID, sessionID,
	).Scan(&row.LearnerID, &row.SessionID, &row.Score, &row.History, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return ComprehensionRow{}, ErrNoComprehension
	}
	if err != nil {
		return ComprehensionRow{}, fmt.Errorf("comprehension read failed: %w", err)
	}
	return row, nil
}

// SaveComprehension upserts the comprehension record. Callers serialize
// updates per (learner, session); the store itself only guarantees the
// individual write is atomic.
func (s *LocalStore) SaveComprehension(ctx context.Context, row ComprehensionRow) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveComprehension")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comprehension (learner_id, session_id, score, history, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(learner_id, session_id) DO UPDATE SET
			score = excluded.score,
			history = excluded.history,
			updated_at = CURRENT_TIMESTAMP
	`, row.LearnerID, row.SessionID, row.Score, row.History)
	if err != nil {
		return fmt.Errorf("comprehension write failed: %w", err)
	}

	logging.StoreDebug("Saved comprehension record learner=%s session=%s score=%.1f", row.LearnerID, row.SessionID, row.Score)
	return nil
}
