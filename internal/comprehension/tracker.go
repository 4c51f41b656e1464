package comprehension

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sensei/internal/config"
	"sensei/internal/logging"
	"sensei/internal/store"
)

// =============================================================================
// TRACKER - serialized persistence around the pure controller
// =============================================================================

// Tracker owns comprehension records in the store. Updates for one
// (learner, session) pair are serialized through a per-record lock so
// concurrent reactions never lose a read-modify-write; different records
// update in parallel.
type Tracker struct {
	store      *store.LocalStore
	controller *Controller

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker over the given store.
func NewTracker(s *store.LocalStore, cfg config.ComprehensionConfig) *Tracker {
	return &Tracker{
		store:      s,
		controller: NewController(cfg),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) recordLock(learnerID, sessionID string) *sync.Mutex {
	key := learnerID + "\x00" + sessionID
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	t.locks[key] = l
	return l
}

// Get reads the record for a (learner, session), creating it lazily at the
// midpoint score on first contact. The lazily created record is not persisted
// until the first reaction.
func (t *Tracker) Get(ctx context.Context, learnerID, sessionID string) (Record, error) {
	row, err := t.store.GetComprehension(ctx, learnerID, sessionID)
	if err == store.ErrNoComprehension {
		return NewRecord(learnerID, sessionID), nil
	}
	if err != nil {
		return Record{}, err
	}
	return recordFromRow(row)
}

// RecordReaction applies a reaction to the learner's record and persists the
// result. Updates for the same record are applied strictly in arrival order.
func (t *Tracker) RecordReaction(ctx context.Context, learnerID, sessionID string, reaction Reaction) (Record, error) {
	lock := t.recordLock(learnerID, sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.Get(ctx, learnerID, sessionID)
	if err != nil {
		return Record{}, err
	}

	updated, err := t.controller.Update(record, reaction, time.Now().UTC())
	if err != nil {
		return record, err
	}

	row, err := rowFromRecord(updated)
	if err != nil {
		return record, err
	}
	if err := t.store.SaveComprehension(ctx, row); err != nil {
		return record, fmt.Errorf("failed to persist comprehension update: %w", err)
	}

	return updated, nil
}

// Stats summarizes a learner's record for observability endpoints.
type Stats struct {
	Score          float64        `json:"score"`
	Level          string         `json:"difficulty_level"`
	Trend          Trend          `json:"trend"`
	ReactionCounts map[Reaction]int `json:"reaction_counts"`
	HistoryLength  int            `json:"history_length"`
}

// Stats computes a read-only summary of the record.
func (t *Tracker) Stats(ctx context.Context, learnerID, sessionID string) (Stats, error) {
	record, err := t.Get(ctx, learnerID, sessionID)
	if err != nil {
		return Stats{}, err
	}

	counts := make(map[Reaction]int)
	for _, entry := range record.History {
		counts[entry.Reaction]++
	}

	return Stats{
		Score:          record.Score,
		Level:          record.Level.String(),
		Trend:          record.Trend,
		ReactionCounts: counts,
		HistoryLength:  len(record.History),
	}, nil
}

// =============================================================================
// ROW SERIALIZATION
// =============================================================================

// storedState is the serialized history payload. Level and trend are
// recoverable from history but stored explicitly so reads stay cheap.
type storedState struct {
	History []HistoryEntry `json:"history"`
	Trend   Trend          `json:"trend"`
	Level   Level          `json:"difficulty_level"`
}

func rowFromRecord(record Record) (store.ComprehensionRow, error) {
	payload, err := json.Marshal(storedState{
		History: record.History,
		Trend:   record.Trend,
		Level:   record.Level,
	})
	if err != nil {
		return store.ComprehensionRow{}, fmt.Errorf("failed to serialize comprehension history: %w", err)
	}
	return store.ComprehensionRow{
		LearnerID: record.LearnerID,
		SessionID: record.SessionID,
		Score:     record.Score,
		History:   string(payload),
	}, nil
}

func recordFromRow(row store.ComprehensionRow) (Record, error) {
	var state storedState
	if err := json.Unmarshal([]byte(row.History), &state); err != nil {
		logging.Get(logging.CategoryComprehension).Error("Corrupt comprehension history for learner=%s session=%s: %v",
			row.LearnerID, row.SessionID, err)
		return Record{}, fmt.Errorf("corrupt comprehension history: %w", err)
	}
	return Record{
		LearnerID: row.LearnerID,
		SessionID: row.SessionID,
		Score:     row.Score,
		History:   state.History,
		Trend:     state.Trend,
		Level:     state.Level,
	}, nil
}
