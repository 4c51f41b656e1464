package pedagogy

import "sensei/internal/comprehension"

// =============================================================================
// DIFFICULTY PARAMETERS
// =============================================================================

// DifficultyParams is the generation parameter set for one difficulty level.
type DifficultyParams struct {
	ExplanationLength  string `json:"explanation_length"`
	ExampleCount       int    `json:"example_count"`
	VocabularyRegister string `json:"vocabulary_register"`
	StepGranularity    string `json:"step_granularity"`
}

// difficultyParams is a fixed lookup, not a computation: the table itself is
// the pedagogy.
var difficultyParams = map[comprehension.Level]DifficultyParams{
	comprehension.LevelVeryEasy: {
		ExplanationLength:  "very short",
		ExampleCount:       3,
		VocabularyRegister: "everyday words only",
		StepGranularity:    "every single step spelled out",
	},
	comprehension.LevelEasy: {
		ExplanationLength:  "short",
		ExampleCount:       2,
		VocabularyRegister: "plain language, define any term",
		StepGranularity:    "small steps",
	},
	comprehension.LevelModerate: {
		ExplanationLength:  "medium",
		ExampleCount:       2,
		VocabularyRegister: "course vocabulary with brief reminders",
		StepGranularity:    "standard steps",
	},
	comprehension.LevelChallenging: {
		ExplanationLength:  "detailed",
		ExampleCount:       1,
		VocabularyRegister: "full course vocabulary",
		StepGranularity:    "key steps only",
	},
	comprehension.LevelAdvanced: {
		ExplanationLength:  "concise and rigorous",
		ExampleCount:       1,
		VocabularyRegister: "technical register",
		StepGranularity:    "outline, learner fills gaps",
	},
}

// ParamsForLevel returns the fixed parameter set for a level.
func ParamsForLevel(level comprehension.Level) DifficultyParams {
	if p, ok := difficultyParams[level]; ok {
		return p
	}
	return difficultyParams[comprehension.LevelModerate]
}
