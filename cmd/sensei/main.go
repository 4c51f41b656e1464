package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sensei/internal/comprehension"
	"sensei/internal/config"
	"sensei/internal/embedding"
	"sensei/internal/jobs"
	"sensei/internal/llm"
	"sensei/internal/logging"
	"sensei/internal/rerank"
	"sensei/internal/retrieval"
	"sensei/internal/store"
	"sensei/internal/tutor"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sensei",
	Short: "sensei - adaptive course tutoring core",
	Long: `sensei answers course questions with hybrid retrieval (vector chunks,
curated QA pairs, knowledge base), corrective reranking, and per-learner
personalization driven by a bounded comprehension score.

Start the HTTP API with "sensei serve", or use "sensei ask" for one-off
questions from the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app is the wired tutoring core shared by the CLI commands.
type app struct {
	cfg    *config.Config
	store  *store.LocalStore
	engine embedding.Engine
	tutor  *tutor.Tutor
	jobs   *jobs.Manager
}

// buildApp loads config and wires the core. The caller owns Close.
func buildApp() (*app, error) {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(root); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}

	path := configPath
	if path == "" {
		path = filepath.Join(root, ".sensei", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Store.DatabasePath = dbPath
	}

	if dir := filepath.Dir(cfg.Store.DatabasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	s, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	s.SetEmbeddingEngine(engine)

	generator := llm.NewHTTPClient(cfg.Generation)

	var scorer rerank.CrossEncoder
	if cfg.Reranker.Enabled {
		scorer = rerank.NewHTTPCrossEncoder(cfg.Reranker)
	}

	classifier := retrieval.NewClassifier(s, generator, cfg.Retrieval.TopicKeywordThreshold)
	retriever := retrieval.NewHybridRetriever(s, engine, classifier, cfg.Retrieval)
	decider := rerank.NewDecider(cfg.Reranker, scorer)
	tracker := comprehension.NewTracker(s, cfg.Comprehension)

	return &app{
		cfg:    cfg,
		store:  s,
		engine: engine,
		tutor:  tutor.New(cfg, retriever, decider, tracker, generator),
		jobs:   jobs.NewManager(s),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
	if err := logging.AuditTrail().Close(); err != nil {
		logger.Warn("Failed to close audit trail", zap.Error(err))
	}
	logging.CloseAll()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default .sensei/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Override database path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
