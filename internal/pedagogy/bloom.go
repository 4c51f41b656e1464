// Package pedagogy turns comprehension state into structured generation
// guidance: a zone-of-proximal-development estimate, a cognitive-taxonomy
// classification of the question, a cognitive-load estimate for the draft
// answer, and a fixed difficulty parameter set per level. The package is
// pure: it never calls external services and never mutates learner state.
package pedagogy

import "strings"

// =============================================================================
// COGNITIVE TAXONOMY
// =============================================================================

// BloomLevel is a cognitive-taxonomy level of a question, ordered from
// recall up to creation.
type BloomLevel int

const (
	BloomRemember BloomLevel = iota
	BloomUnderstand
	BloomApply
	BloomAnalyze
	BloomEvaluate
	BloomCreate
)

func (b BloomLevel) String() string {
	switch b {
	case BloomRemember:
		return "remember"
	case BloomUnderstand:
		return "understand"
	case BloomApply:
		return "apply"
	case BloomAnalyze:
		return "analyze"
	case BloomEvaluate:
		return "evaluate"
	case BloomCreate:
		return "create"
	default:
		return "unknown"
	}
}

// bloomCues are lexical markers per taxonomy level. The classifier picks the
// highest level with a matching cue, so "design an experiment to compare"
// classifies as create, not analyze.
var bloomCues = []struct {
	level BloomLevel
	cues  []string
}{
	{BloomCreate, []string{"design", "create", "invent", "propose", "come up with", "build a", "devise"}},
	{BloomEvaluate, []string{"evaluate", "justify", "argue", "assess", "critique", "which is better", "defend", "judge"}},
	{BloomAnalyze, []string{"compare", "contrast", "analyze", "analyse", "difference between", "classify", "distinguish", "break down"}},
	{BloomApply, []string{"how do i", "how would", "solve", "calculate", "apply", "use the", "demonstrate", "compute"}},
	{BloomUnderstand, []string{"explain", "describe", "why", "summarize", "summarise", "interpret", "what happens", "in your own words"}},
	{BloomRemember, []string{"what is", "what are", "define", "list", "name", "when did", "who", "state the"}},
}

// Confidence values for the lexical classifier: an explicit cue is a strong
// signal, the default without any cue is a weak one.
const (
	bloomCueConfidence     = 0.8
	bloomDefaultConfidence = 0.4
)

// ClassifyBloom classifies a question's cognitive level from its wording and
// reports how confident the lexical match is. Independent of the
// comprehension score: the same question classifies the same way for every
// learner.
func ClassifyBloom(question string) (BloomLevel, float64) {
	q := strings.ToLower(question)
	for _, group := range bloomCues {
		for _, cue := range group.cues {
			if strings.Contains(q, cue) {
				return group.level, bloomCueConfidence
			}
		}
	}
	return BloomUnderstand, bloomDefaultConfidence
}
