package comprehension

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"sensei/internal/config"
)

func testConfig() config.ComprehensionConfig {
	return config.DefaultConfig().Comprehension
}

func apply(t *testing.T, c *Controller, record Record, reactions ...Reaction) Record {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range reactions {
		var err error
		record, err = c.Update(record, r, now)
		if err != nil {
			t.Fatalf("Update(%s) failed: %v", r, err)
		}
		now = now.Add(time.Minute)
	}
	return record
}

func TestUpdateBasicDeltas(t *testing.T) {
	c := NewController(testConfig())
	record := NewRecord("alice", "bio-101")

	record = apply(t, c, record, ReactionGotIt)
	if record.Score != 55 {
		t.Errorf("got_it from 50 should give 55, got %v", record.Score)
	}
	record = apply(t, c, record, ReactionConfused)
	if record.Score != 51 {
		t.Errorf("confused from 55 should give 51, got %v", record.Score)
	}
	if len(record.History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(record.History))
	}
}

func TestScoreStaysBounded(t *testing.T) {
	c := NewController(testConfig())
	record := NewRecord("alice", "bio-101")
	rng := rand.New(rand.NewSource(42))
	all := []Reaction{ReactionGotIt, ReactionMostly, ReactionConfused, ReactionLost}

	now := time.Now().UTC()
	for i := 0; i < 500; i++ {
		var err error
		record, err = c.Update(record, all[rng.Intn(len(all))], now)
		if err != nil {
			t.Fatalf("Update failed at step %d: %v", i, err)
		}
		if record.Score < 0 || record.Score > 100 {
			t.Fatalf("score escaped [0,100] at step %d: %v", i, record.Score)
		}
	}
}

func TestUpdateIsPure(t *testing.T) {
	c := NewController(testConfig())
	record := apply(t, c, NewRecord("alice", "bio-101"), ReactionGotIt, ReactionMostly)

	beforeScore := record.Score
	beforeLen := len(record.History)

	updated := apply(t, c, record, ReactionLost)

	if record.Score != beforeScore {
		t.Errorf("input record score mutated: %v -> %v", beforeScore, record.Score)
	}
	if len(record.History) != beforeLen {
		t.Errorf("input record history mutated: %d -> %d entries", beforeLen, len(record.History))
	}
	if updated.Score == beforeScore {
		t.Error("returned record should carry the new score")
	}
}

func TestUnknownReactionRejectedWithoutMutation(t *testing.T) {
	c := NewController(testConfig())
	record := apply(t, c, NewRecord("alice", "bio-101"), ReactionGotIt)

	got, err := c.Update(record, Reaction("shrug"), time.Now().UTC())
	if !errors.Is(err, ErrUnknownReaction) {
		t.Fatalf("expected ErrUnknownReaction, got %v", err)
	}
	if got.Score != record.Score || len(got.History) != len(record.History) {
		t.Error("record must be returned unchanged on unknown reaction")
	}
}

func TestNegativeStreakDamping(t *testing.T) {
	cfg := testConfig()
	cfg.DeltaConfused = -5
	c := NewController(cfg)

	// Third consecutive negative reaction is halved: 50 -5 -5 -2.5 = 37.5,
	// so a short run of confusion does not collapse the score.
	record := apply(t, c, NewRecord("alice", "bio-101"), ReactionConfused, ReactionConfused, ReactionConfused)
	if record.Score != 37.5 {
		t.Errorf("expected damped score 37.5, got %v", record.Score)
	}

	// Without damping the same run would land at 35.
	undamped := 50 + 3*cfg.DeltaConfused
	if record.Score <= undamped {
		t.Errorf("damped score %v should exceed undamped %v", record.Score, undamped)
	}
}

func TestPositiveStreakDampingTriggersLater(t *testing.T) {
	c := NewController(testConfig())

	record := apply(t, c, NewRecord("alice", "bio-101"),
		ReactionGotIt, ReactionGotIt, ReactionGotIt, ReactionGotIt)
	if record.Score != 70 {
		t.Fatalf("first four got_it should be undamped, got %v", record.Score)
	}

	// Fifth consecutive positive reaction gets halved.
	record = apply(t, c, record, ReactionGotIt)
	if record.Score != 72.5 {
		t.Errorf("fifth got_it should apply half delta, got %v", record.Score)
	}
}

func TestStreakBrokenByOppositeLeaning(t *testing.T) {
	cfg := testConfig()
	cfg.DeltaConfused = -5
	c := NewController(cfg)

	// got_it between the negatives resets the run; third confused is undamped.
	record := apply(t, c, NewRecord("alice", "bio-101"),
		ReactionConfused, ReactionConfused, ReactionGotIt, ReactionConfused)
	last := record.History[len(record.History)-1]
	if last.Delta != -5 {
		t.Errorf("broken streak must not damp, got delta %v", last.Delta)
	}
}

func TestBoundaryDamping(t *testing.T) {
	c := NewController(testConfig())

	record := NewRecord("alice", "bio-101")
	record.Score = 82
	record.Level = LevelAdvanced

	record = apply(t, c, record, ReactionGotIt)
	if record.Score != 85.5 {
		t.Errorf("got_it at 82 should give 82 + 5*0.7 = 85.5, got %v", record.Score)
	}

	record = NewRecord("bob", "bio-101")
	record.Score = 18
	record.Level = LevelVeryEasy
	record = apply(t, c, record, ReactionLost)
	if record.Score != 13.1 {
		t.Errorf("lost at 18 should give 18 - 7*0.7 = 13.1, got %v", record.Score)
	}
}

func TestLevelHysteresisNoFlapping(t *testing.T) {
	c := NewController(testConfig())

	record := NewRecord("alice", "bio-101")
	record.Score = 59
	record.Level = LevelModerate

	// Cross into challenging at 61.
	record = apply(t, c, record, ReactionMostly)
	if record.Level != LevelChallenging {
		t.Fatalf("score %v should enter challenging, got %s", record.Score, record.Level)
	}

	// Oscillate just below the boundary: 57 stays above the exit threshold,
	// so the level must hold.
	record = apply(t, c, record, ReactionConfused)
	if record.Score != 57 {
		t.Fatalf("expected score 57, got %v", record.Score)
	}
	if record.Level != LevelChallenging {
		t.Errorf("score 57 within hysteresis band must keep challenging, got %s", record.Level)
	}

	record = apply(t, c, record, ReactionMostly)
	if record.Level != LevelChallenging {
		t.Errorf("oscillation around the boundary must not flap, got %s", record.Level)
	}
}

func TestLevelDropsBelowExitThreshold(t *testing.T) {
	c := NewController(testConfig())

	record := NewRecord("alice", "bio-101")
	record.Score = 61
	record.Level = LevelChallenging

	// 61 - 7 = 54, below the 57 exit threshold.
	record = apply(t, c, record, ReactionLost)
	if record.Level != LevelModerate {
		t.Errorf("score %v should drop to moderate, got %s", record.Score, record.Level)
	}
}

func TestLevelForScoreCrossesMultipleBounds(t *testing.T) {
	if got := LevelForScore(85, LevelVeryEasy); got != LevelAdvanced {
		t.Errorf("85 from very_easy should reach advanced, got %s", got)
	}
	if got := LevelForScore(5, LevelAdvanced); got != LevelVeryEasy {
		t.Errorf("5 from advanced should fall to very_easy, got %s", got)
	}
}

func TestTrendClassification(t *testing.T) {
	c := NewController(testConfig())

	record := apply(t, c, NewRecord("alice", "bio-101"),
		ReactionGotIt, ReactionGotIt, ReactionMostly, ReactionGotIt)
	if record.Trend != TrendImproving {
		t.Errorf("majority-positive window should be improving, got %s", record.Trend)
	}

	record = apply(t, c, record,
		ReactionLost, ReactionLost, ReactionConfused, ReactionLost, ReactionConfused)
	if record.Trend != TrendDeclining {
		t.Errorf("majority-negative window should be declining, got %s", record.Trend)
	}

	single := apply(t, c, NewRecord("bob", "bio-101"), ReactionGotIt)
	if single.Trend != TrendStable {
		t.Errorf("one reaction is not a trend, got %s", single.Trend)
	}
}

func TestHistoryTruncation(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryLimit = 5
	c := NewController(cfg)

	record := NewRecord("alice", "bio-101")
	for i := 0; i < 8; i++ {
		record = apply(t, c, record, ReactionMostly)
	}
	if len(record.History) != 5 {
		t.Errorf("history should truncate to limit 5, got %d", len(record.History))
	}
}

func TestParseReaction(t *testing.T) {
	for _, raw := range []string{"got_it", "mostly", "confused", "lost"} {
		if _, err := ParseReaction(raw); err != nil {
			t.Errorf("ParseReaction(%q) failed: %v", raw, err)
		}
	}
	if _, err := ParseReaction("meh"); !errors.Is(err, ErrUnknownReaction) {
		t.Errorf("expected ErrUnknownReaction for unknown input, got %v", err)
	}
}
