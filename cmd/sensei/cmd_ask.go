package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sensei/internal/tutor"
)

var (
	askLearner string
	askSession string
)

// askCmd answers one question from the terminal
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question against a session's course material",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

// feedbackCmd records a reaction to the last answer
var feedbackCmd = &cobra.Command{
	Use:   "feedback [got_it|mostly|confused|lost]",
	Short: "Record your reaction to the last answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedback,
}

// statsCmd shows the learner's comprehension state
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show comprehension score, level, and trend",
	RunE:  runStats,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, feedbackCmd, statsCmd} {
		c.Flags().StringVarP(&askLearner, "learner", "l", "default", "Learner id")
		c.Flags().StringVarP(&askSession, "session", "s", "default", "Session id")
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	answer, err := a.tutor.Ask(cmd.Context(), askLearner, askSession, question)
	if errors.Is(err, tutor.ErrNoMaterial) {
		fmt.Println("The course material does not cover this question.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Println()
	fmt.Printf("[decision=%s topics=%d fallback=%v partial=%v]\n",
		answer.Decision.Action, len(answer.Topics), answer.UsedKBFallback, answer.Partial)
	fmt.Println("Rate this answer with: sensei feedback got_it|mostly|confused|lost")
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	record, err := a.tutor.RecordReaction(cmd.Context(), askLearner, askSession, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Score: %.1f  Level: %s  Trend: %s\n", record.Score, record.Level, record.Trend)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.tutor.Comprehension(cmd.Context(), askLearner, askSession)
	if err != nil {
		return err
	}

	fmt.Printf("Learner:  %s\n", askLearner)
	fmt.Printf("Session:  %s\n", askSession)
	fmt.Printf("Score:    %.1f\n", stats.Score)
	fmt.Printf("Level:    %s\n", stats.Level)
	fmt.Printf("Trend:    %s\n", stats.Trend)
	fmt.Printf("History:  %d reaction(s)\n", stats.HistoryLength)
	for reaction, count := range stats.ReactionCounts {
		fmt.Printf("  %-10s %d\n", reaction, count)
	}
	return nil
}
