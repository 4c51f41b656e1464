// Package comprehension implements the bounded feedback-driven comprehension
// score controller: damped score updates from learner reactions, hysteresis
// over difficulty levels, and a bounded feedback history with trend analysis.
package comprehension

import (
	"fmt"
	"time"
)

// =============================================================================
// REACTIONS
// =============================================================================

// Reaction is a discrete learner feedback category submitted after an answer.
type Reaction string

const (
	ReactionGotIt    Reaction = "got_it"   // fully understood
	ReactionMostly   Reaction = "mostly"   // mostly understood
	ReactionConfused Reaction = "confused" // partially confused
	ReactionLost     Reaction = "lost"     // did not understand
)

// ErrUnknownReaction is returned for reactions outside the fixed vocabulary.
// An unknown reaction never mutates the record and never enters history.
var ErrUnknownReaction = fmt.Errorf("unknown reaction category")

// ParseReaction validates a raw reaction string.
func ParseReaction(raw string) (Reaction, error) {
	switch Reaction(raw) {
	case ReactionGotIt, ReactionMostly, ReactionConfused, ReactionLost:
		return Reaction(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReaction, raw)
}

// PositiveLeaning reports whether the reaction raises the score.
func (r Reaction) PositiveLeaning() bool {
	return r == ReactionGotIt || r == ReactionMostly
}

// NegativeLeaning reports whether the reaction lowers the score.
func (r Reaction) NegativeLeaning() bool {
	return r == ReactionConfused || r == ReactionLost
}

// =============================================================================
// DIFFICULTY LEVELS
// =============================================================================

// Level is one of five ordered pedagogical difficulty levels.
type Level int

const (
	LevelVeryEasy Level = iota
	LevelEasy
	LevelModerate
	LevelChallenging
	LevelAdvanced
)

func (l Level) String() string {
	switch l {
	case LevelVeryEasy:
		return "very_easy"
	case LevelEasy:
		return "easy"
	case LevelModerate:
		return "moderate"
	case LevelChallenging:
		return "challenging"
	case LevelAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// levelBounds are the enter thresholds between adjacent levels on the 0-100
// scale: a score must reach levelBounds[l-1] to enter level l from below.
var levelBounds = [4]float64{20, 40, 60, 80}

// hysteresisMargin is how far below an enter threshold the score must fall
// before the level drops back. The gap keeps a score oscillating around a
// boundary from flapping the level.
const hysteresisMargin = 3.0

func enterThreshold(l Level) float64 {
	return levelBounds[l-1]
}

func exitThreshold(l Level) float64 {
	return levelBounds[l-1] - hysteresisMargin
}

// LevelForScore computes the difficulty level with hysteresis. The previous
// level is sticky: the score must cross the enter threshold of the next level
// to rise, or fall below the current level's exit threshold to drop.
func LevelForScore(score float64, prev Level) Level {
	lvl := prev
	for lvl < LevelAdvanced && score >= enterThreshold(lvl+1) {
		lvl++
	}
	for lvl > LevelVeryEasy && score < exitThreshold(lvl) {
		lvl--
	}
	return lvl
}

// InitialLevel maps a score to a level with no history (first contact).
func InitialLevel(score float64) Level {
	return LevelForScore(score, LevelVeryEasy)
}

// =============================================================================
// RECORD
// =============================================================================

// Trend summarizes the recent direction of the learner's comprehension.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// HistoryEntry is one applied feedback update.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Reaction      Reaction  `json:"reaction"`
	PreviousScore float64   `json:"previous_score"`
	NewScore      float64   `json:"new_score"`
	Delta         float64   `json:"delta"`
	Level         Level     `json:"difficulty_level"`
}

// Record is the per (learner, session) comprehension state.
type Record struct {
	LearnerID string         `json:"learner_id"`
	SessionID string         `json:"session_id"`
	Score     float64        `json:"score"`
	History   []HistoryEntry `json:"history"`
	Trend     Trend          `json:"trend"`
	Level     Level          `json:"difficulty_level"`
}

// InitialScore is the midpoint starting score for first contact.
const InitialScore = 50.0

// NewRecord creates a fresh record at the midpoint score.
func NewRecord(learnerID, sessionID string) Record {
	return Record{
		LearnerID: learnerID,
		SessionID: sessionID,
		Score:     InitialScore,
		Trend:     TrendStable,
		Level:     InitialLevel(InitialScore),
	}
}
