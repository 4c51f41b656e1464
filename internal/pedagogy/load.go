package pedagogy

import (
	"strings"
	"unicode"

	"sensei/internal/comprehension"
)

// =============================================================================
// COGNITIVE LOAD
// =============================================================================

// loadThreshold is the load score above which an answer needs simplification.
const loadThreshold = 1.0

// wordBudget is how many answer words each difficulty level comfortably
// carries before length starts inflating load.
var wordBudget = map[comprehension.Level]int{
	comprehension.LevelVeryEasy:    80,
	comprehension.LevelEasy:        130,
	comprehension.LevelModerate:    200,
	comprehension.LevelChallenging: 300,
	comprehension.LevelAdvanced:    450,
}

// LoadEstimate is the estimated cognitive load of an answer for a learner at
// a given level. Score is roughly 1.0 at the level's comfortable maximum.
type LoadEstimate struct {
	Score               float64 `json:"score"`
	WordCount           int     `json:"word_count"`
	ConceptDensity      float64 `json:"concept_density"`
	NeedsSimplification bool    `json:"needs_simplification"`
}

// EstimateLoad scores a draft answer against the learner's level. Load grows
// with length relative to the level's word budget and with concept density,
// the fraction of long content words in the text.
func EstimateLoad(answer string, level comprehension.Level) LoadEstimate {
	words := strings.FieldsFunc(answer, func(r rune) bool {
		return unicode.IsSpace(r)
	})

	estimate := LoadEstimate{WordCount: len(words)}
	if len(words) == 0 {
		return estimate
	}

	longWords := 0
	for _, w := range words {
		if len(strings.TrimFunc(w, unicode.IsPunct)) >= 9 {
			longWords++
		}
	}
	estimate.ConceptDensity = float64(longWords) / float64(len(words))

	budget := wordBudget[level]
	if budget == 0 {
		budget = wordBudget[comprehension.LevelModerate]
	}

	// Density shifts the effective length: a dense answer reads longer than
	// its word count.
	lengthLoad := float64(estimate.WordCount) / float64(budget)
	estimate.Score = lengthLoad * (1.0 + estimate.ConceptDensity)
	estimate.NeedsSimplification = estimate.Score > loadThreshold

	return estimate
}
