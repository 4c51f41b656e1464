package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sensei/internal/config"
	"sensei/internal/jobs"
)

var (
	ingestSession string
	ingestJobID   string
)

// ingestCmd loads course material from a JSON file
var ingestCmd = &cobra.Command{
	Use:   "ingest [material.json]",
	Short: "Ingest course material into a session",
	Long: `Loads topics, chunks, QA pairs, and knowledge-base entries from a JSON
file shaped like the /api/ingest request body. QA question embeddings are
computed in one batched call at write time.

Pass --job-id to make the submission idempotent: resubmitting the same id
reports the existing job instead of ingesting twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// topicsCmd lists a session's topic catalog
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the session's topic catalog",
	RunE:  runTopics,
}

// initCmd writes a default config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .sensei/config.yaml with defaults",
	RunE:  runInit,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSession, "session", "s", "", "Session id (overrides the file)")
	ingestCmd.Flags().StringVar(&ingestJobID, "job-id", "", "Idempotent job id")
	topicsCmd.Flags().StringVarP(&askSession, "session", "s", "default", "Session id")
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read material file: %w", err)
	}

	var req jobs.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse material file: %w", err)
	}
	if ingestSession != "" {
		req.SessionID = ingestSession
	}
	if ingestJobID != "" {
		req.JobID = ingestJobID
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.jobs.Submit(cmd.Context(), req)
	if err != nil {
		return err
	}

	logger.Info("Ingestion finished",
		zap.String("job", rec.ID),
		zap.String("status", rec.Status),
		zap.String("detail", rec.Detail))

	fmt.Printf("Job %s: %s\n", rec.ID, rec.Status)
	if rec.Error != "" {
		fmt.Printf("Error: %s\n", rec.Error)
	}
	return nil
}

func runTopics(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topics, err := a.store.TopicsForSession(cmd.Context(), askSession)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		fmt.Printf("No topics in session %q. Ingest material first.\n", askSession)
		return nil
	}

	for _, t := range topics {
		fmt.Printf("%-20s %-30s %s\n", t.TopicID, t.Name, strings.Join(t.Keywords, ", "))
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		return err
	}
	path := configPath
	if path == "" {
		path = root + "/.sensei/config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set SENSEI_GENERATION_API_KEY (and SENSEI_GENAI_API_KEY for genai embeddings) before serving.")
	return nil
}
