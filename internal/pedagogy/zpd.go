package pedagogy

import "sensei/internal/comprehension"

// =============================================================================
// ZONE OF PROXIMAL DEVELOPMENT
// =============================================================================

// zpdWindow is how many recent reactions feed the success rate.
const zpdWindow = 10

const (
	// Success rates beyond these bounds move the recommended level.
	zpdAdvanceRate = 0.8
	zpdRetreatRate = 0.3
)

// ZPD is a zone-of-proximal-development estimate: where the learner is, where
// the recent evidence says they should be working, and the success rate the
// recommendation is based on.
type ZPD struct {
	CurrentLevel     comprehension.Level `json:"current_level"`
	RecommendedLevel comprehension.Level `json:"recommended_level"`
	SuccessRate      float64             `json:"success_rate"`
}

// EstimateZPD derives the estimate from the record's recent history. With no
// history the learner stays where they are at a neutral success rate.
func EstimateZPD(record comprehension.Record) ZPD {
	estimate := ZPD{
		CurrentLevel:     record.Level,
		RecommendedLevel: record.Level,
		SuccessRate:      0.5,
	}

	history := record.History
	if len(history) == 0 {
		return estimate
	}
	if len(history) > zpdWindow {
		history = history[len(history)-zpdWindow:]
	}

	positive := 0
	for _, entry := range history {
		if entry.Reaction.PositiveLeaning() {
			positive++
		}
	}
	estimate.SuccessRate = float64(positive) / float64(len(history))

	switch {
	case estimate.SuccessRate >= zpdAdvanceRate && record.Level < comprehension.LevelAdvanced:
		estimate.RecommendedLevel = record.Level + 1
	case estimate.SuccessRate <= zpdRetreatRate && record.Level > comprehension.LevelVeryEasy:
		estimate.RecommendedLevel = record.Level - 1
	}

	return estimate
}

// Stretch reports whether the learner is ready for material one level up.
func (z ZPD) Stretch() bool {
	return z.RecommendedLevel > z.CurrentLevel
}

// Consolidate reports whether the learner should drop back a level.
func (z ZPD) Consolidate() bool {
	return z.RecommendedLevel < z.CurrentLevel
}
