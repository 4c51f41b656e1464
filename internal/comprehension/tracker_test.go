package comprehension

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"sensei/internal/store"
)

// verifyNoLeaks checks for goroutines leaked by the tracker itself. The
// sqlite pool's connection opener lives until the store closes in t.Cleanup,
// and the genai import chain starts an opencensus worker at init; neither
// belongs to the code under test.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newTestTracker(t *testing.T) (*Tracker, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create local store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewTracker(s, testConfig()), s
}

func TestTrackerLazyRecord(t *testing.T) {
	tracker, s := newTestTracker(t)
	ctx := context.Background()

	record, err := tracker.Get(ctx, "alice", "bio-101")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Score != InitialScore {
		t.Errorf("first contact should start at %v, got %v", InitialScore, record.Score)
	}

	// Reads alone never persist.
	if _, err := s.GetComprehension(ctx, "alice", "bio-101"); !errors.Is(err, store.ErrNoComprehension) {
		t.Errorf("Get must not persist the lazy record, got %v", err)
	}
}

func TestTrackerPersistsAcrossInstances(t *testing.T) {
	tracker, s := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.RecordReaction(ctx, "alice", "bio-101", ReactionGotIt); err != nil {
		t.Fatalf("RecordReaction failed: %v", err)
	}

	// A fresh tracker over the same store sees the persisted record.
	reloaded := NewTracker(s, testConfig())
	record, err := reloaded.Get(ctx, "alice", "bio-101")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if record.Score != 55 {
		t.Errorf("expected persisted score 55, got %v", record.Score)
	}
	if len(record.History) != 1 {
		t.Errorf("expected 1 persisted history entry, got %d", len(record.History))
	}
	if record.History[0].Reaction != ReactionGotIt {
		t.Errorf("history entry did not round-trip, got %s", record.History[0].Reaction)
	}
}

func TestTrackerUnknownReactionNotPersisted(t *testing.T) {
	tracker, s := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.RecordReaction(ctx, "alice", "bio-101", Reaction("shrug")); !errors.Is(err, ErrUnknownReaction) {
		t.Fatalf("expected ErrUnknownReaction, got %v", err)
	}
	if _, err := s.GetComprehension(ctx, "alice", "bio-101"); !errors.Is(err, store.ErrNoComprehension) {
		t.Error("rejected reaction must not create a record")
	}
}

func TestTrackerConcurrentSameRecord(t *testing.T) {
	defer verifyNoLeaks(t)

	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	// 10 identical reactions applied concurrently. Serialization makes the
	// result order-independent: four full +5 steps, then streak damping, then
	// boundary damping past 80.
	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordReaction(ctx, "alice", "bio-101", ReactionGotIt); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent RecordReaction failed: %v", err)
	}

	record, err := tracker.Get(ctx, "alice", "bio-101")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(record.History) != n {
		t.Errorf("lost updates: expected %d history entries, got %d", n, len(record.History))
	}
	if record.Score != 83.5 {
		t.Errorf("expected deterministic final score 83.5, got %v", record.Score)
	}
}

func TestTrackerConcurrentDistinctRecords(t *testing.T) {
	defer verifyNoLeaks(t)

	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	learners := []string{"alice", "bob", "carol", "dave"}
	var wg sync.WaitGroup
	for _, learner := range learners {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, err := tracker.RecordReaction(ctx, id, "bio-101", ReactionMostly); err != nil {
					t.Errorf("RecordReaction(%s) failed: %v", id, err)
					return
				}
			}
		}(learner)
	}
	wg.Wait()

	for _, learner := range learners {
		record, err := tracker.Get(ctx, learner, "bio-101")
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", learner, err)
		}
		if len(record.History) != 5 {
			t.Errorf("learner %s: expected 5 entries, got %d", learner, len(record.History))
		}
	}
}

func TestTrackerStats(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	reactions := []Reaction{ReactionGotIt, ReactionGotIt, ReactionConfused}
	for _, r := range reactions {
		if _, err := tracker.RecordReaction(ctx, "alice", "bio-101", r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := tracker.Stats(ctx, "alice", "bio-101")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.HistoryLength != 3 {
		t.Errorf("expected history length 3, got %d", stats.HistoryLength)
	}
	if stats.ReactionCounts[ReactionGotIt] != 2 || stats.ReactionCounts[ReactionConfused] != 1 {
		t.Errorf("unexpected reaction counts: %v", stats.ReactionCounts)
	}
	if stats.Score != 56 {
		t.Errorf("expected score 56, got %v", stats.Score)
	}
}
