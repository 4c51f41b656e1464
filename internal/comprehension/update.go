package comprehension

import (
	"fmt"
	"time"

	"sensei/internal/config"
	"sensei/internal/logging"
)

// =============================================================================
// SCORE UPDATE - pure transition function
// =============================================================================

// Controller applies reaction updates to comprehension records using the
// configured deltas and damping rules. Update is pure given (record,
// reaction, now): callers own persistence and serialization.
type Controller struct {
	cfg config.ComprehensionConfig
}

// NewController creates a controller from validated config.
func NewController(cfg config.ComprehensionConfig) *Controller {
	return &Controller{cfg: cfg}
}

// baseDelta maps a reaction to its signed base delta.
func (c *Controller) baseDelta(reaction Reaction) (float64, error) {
	switch reaction {
	case ReactionGotIt:
		return c.cfg.DeltaGotIt, nil
	case ReactionMostly:
		return c.cfg.DeltaMostly, nil
	case ReactionConfused:
		return c.cfg.DeltaConfused, nil
	case ReactionLost:
		return c.cfg.DeltaLost, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownReaction, reaction)
}

// Update applies one reaction to a record and returns the new record.
// The input record is not mutated. Unknown reactions return an error and the
// record unchanged: ambiguous input never silently enters history.
func (c *Controller) Update(record Record, reaction Reaction, now time.Time) (Record, error) {
	delta, err := c.baseDelta(reaction)
	if err != nil {
		return record, err
	}

	prevScore := record.Score

	// Streak damping. A run of same-leaning reactions (including this one)
	// halves the delta: negative streaks stop runaway collapse, positive
	// streaks stop runaway escalation.
	if c.inStreak(record.History, reaction) {
		delta *= c.cfg.StreakDampingFactor
		logging.ComprehensionDebug("Streak damping applied: reaction=%s delta=%.2f", reaction, delta)
	}

	// Boundary damping slows the approach to either extreme of the scale.
	if (prevScore >= c.cfg.BoundaryHigh && delta > 0) || (prevScore <= c.cfg.BoundaryLow && delta < 0) {
		delta *= c.cfg.BoundaryDampingFactor
		logging.ComprehensionDebug("Boundary damping applied: score=%.1f delta=%.2f", prevScore, delta)
	}

	newScore := clamp(prevScore+delta, 0, 100)
	newLevel := LevelForScore(newScore, record.Level)

	updated := record
	updated.Score = newScore
	updated.Level = newLevel

	// Append to history, truncating from the front at the retention limit.
	entry := HistoryEntry{
		Timestamp:     now,
		Reaction:      reaction,
		PreviousScore: prevScore,
		NewScore:      newScore,
		Delta:         newScore - prevScore,
		Level:         newLevel,
	}
	updated.History = append(append([]HistoryEntry(nil), record.History...), entry)
	if limit := c.cfg.HistoryLimit; len(updated.History) > limit {
		updated.History = updated.History[len(updated.History)-limit:]
	}

	updated.Trend = c.computeTrend(updated.History)

	logging.Comprehension("Updated learner=%s session=%s: %.1f -> %.1f (reaction=%s, level=%s, trend=%s)",
		record.LearnerID, record.SessionID, prevScore, newScore, reaction, newLevel, updated.Trend)

	return updated, nil
}

// inStreak reports whether this reaction completes a same-leaning run long
// enough to trigger damping. Negative and positive runs have independent
// lengths; negative streaks trigger sooner.
func (c *Controller) inStreak(history []HistoryEntry, current Reaction) bool {
	var need int
	var leaning func(Reaction) bool
	switch {
	case current.NegativeLeaning():
		need = c.cfg.NegativeStreakLength
		leaning = Reaction.NegativeLeaning
	case current.PositiveLeaning():
		need = c.cfg.PositiveStreakLength
		leaning = Reaction.PositiveLeaning
	default:
		return false
	}

	// The current reaction counts as one; the rest must come from the tail
	// of history.
	needPrior := need - 1
	if len(history) < needPrior {
		return false
	}
	for i := len(history) - needPrior; i < len(history); i++ {
		if !leaning(history[i].Reaction) {
			return false
		}
	}
	return true
}

// computeTrend classifies the recent window: a strict majority of
// positive-leaning reactions is improving, a strict majority of
// negative-leaning is declining, anything else stable.
func (c *Controller) computeTrend(history []HistoryEntry) Trend {
	window := c.cfg.TrendWindow
	if len(history) < 2 {
		return TrendStable
	}
	if len(history) < window {
		window = len(history)
	}

	positive, negative := 0, 0
	for _, entry := range history[len(history)-window:] {
		if entry.Reaction.PositiveLeaning() {
			positive++
		} else if entry.Reaction.NegativeLeaning() {
			negative++
		}
	}

	switch {
	case positive*2 > window:
		return TrendImproving
	case negative*2 > window:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
