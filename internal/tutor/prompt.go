package tutor

import (
	"fmt"
	"strings"

	"sensei/internal/pedagogy"
	"sensei/internal/rerank"
	"sensei/internal/retrieval"
)

// =============================================================================
// PROMPT ASSEMBLY
// =============================================================================

// buildSystemPrompt renders the personalization guidance as the generation
// service's system prompt.
func buildSystemPrompt(g pedagogy.Guidance) string {
	var b strings.Builder
	b.WriteString("You are a patient course tutor. Answer only from the provided course material; ")
	b.WriteString("if the material does not cover the question, say so instead of inventing content.\n\n")
	b.WriteString("Follow these instructions for this learner:\n")
	for _, ins := range g.Instructions {
		fmt.Fprintf(&b, "- %s\n", ins)
	}
	return b.String()
}

// buildPrompt merges the surviving context into one generation request.
// Knowledge items and QA matches bypass the chunk decision and always merge;
// on the reject-with-fallback path the knowledge section stands in for the
// rejected chunks.
func buildPrompt(question string, bundle *retrieval.Bundle, outcome rerank.Outcome) string {
	var b strings.Builder

	if len(outcome.Accepted) > 0 {
		b.WriteString("Course material:\n")
		for i, c := range outcome.Accepted {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
		}
		b.WriteString("\n")
	}

	if len(bundle.Knowledge) > 0 {
		b.WriteString("Curated knowledge:\n")
		for _, item := range bundle.Knowledge {
			fmt.Fprintf(&b, "- %s: %s\n", item.Title, item.Content)
		}
		b.WriteString("\n")
	}

	if len(bundle.QAMatches) > 0 {
		b.WriteString("Related curated answers:\n")
		for _, m := range bundle.QAMatches {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", m.Pair.Question, m.Pair.Answer)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Student question: %s", question)
	return b.String()
}
