package pedagogy

import (
	"fmt"

	"sensei/internal/comprehension"
	"sensei/internal/logging"
)

// =============================================================================
// PERSONALIZER
// =============================================================================

// Guidance is the structured instruction set handed to the generation
// service alongside the retrieved context and the draft answer.
type Guidance struct {
	Instructions    []string         `json:"instructions"`
	Params          DifficultyParams `json:"difficulty_params"`
	ZPD             ZPD              `json:"zpd"`
	Bloom           string           `json:"bloom_level"`
	BloomConfidence float64          `json:"bloom_confidence"`
	Load            LoadEstimate     `json:"cognitive_load"`
}

// Personalize combines the learner's comprehension record with independent
// analyses of the question and draft answer. Pure over its inputs; the record
// is read, never written.
func Personalize(record comprehension.Record, question, draftAnswer string) Guidance {
	bloom, bloomConf := ClassifyBloom(question)
	zpd := EstimateZPD(record)
	load := EstimateLoad(draftAnswer, record.Level)
	params := ParamsForLevel(record.Level)

	g := Guidance{
		Params:          params,
		ZPD:             zpd,
		Bloom:           bloom.String(),
		BloomConfidence: bloomConf,
		Load:            load,
	}

	g.Instructions = append(g.Instructions,
		fmt.Sprintf("Write a %s explanation using %s.", params.ExplanationLength, params.VocabularyRegister),
		fmt.Sprintf("Include %d concrete example(s) with %s.", params.ExampleCount, params.StepGranularity),
	)

	if bloom == BloomRemember {
		g.Instructions = append(g.Instructions,
			"This is a recall question: answer briefly and anchor the answer on the key term itself.")
	} else {
		g.Instructions = append(g.Instructions,
			fmt.Sprintf("This is a %s-level question: frame the answer as reasoning and synthesis, not a definition.", bloom))
	}

	if load.NeedsSimplification {
		g.Instructions = append(g.Instructions,
			"The source material is too dense for this learner: simplify, shorten sentences, and cut secondary concepts.")
	}

	switch {
	case zpd.Stretch():
		g.Instructions = append(g.Instructions,
			"The learner is succeeding at this level: end with a slightly harder follow-up question.")
	case zpd.Consolidate():
		g.Instructions = append(g.Instructions,
			"The learner is struggling: reinforce fundamentals before introducing anything new.")
	}

	logging.Pedagogy("Guidance for learner=%s: level=%s bloom=%s load=%.2f simplify=%v zpd=%d->%d",
		record.LearnerID, record.Level, g.Bloom, load.Score, load.NeedsSimplification,
		zpd.CurrentLevel, zpd.RecommendedLevel)

	return g
}
