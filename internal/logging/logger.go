// Package logging provides config-driven categorized file-based logging for sensei.
// Logs are written to .sensei/logs/ with separate files per category.
// Logging is controlled by the logging section of .sensei/config.yaml - when
// debug_mode is false, no logs are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot          Category = "boot"          // Startup/initialization
	CategoryConfig        Category = "config"        // Configuration loading
	CategoryStore         Category = "store"         // SQLite store operations
	CategoryEmbedding     Category = "embedding"     // Embedding engine
	CategoryRetrieval     Category = "retrieval"     // Hybrid retrieval
	CategoryRerank        Category = "rerank"        // Cross-encoder reranking decisions
	CategoryComprehension Category = "comprehension" // Comprehension score updates
	CategoryPedagogy      Category = "pedagogy"      // Personalization analysis
	CategoryTutor         Category = "tutor"         // Per-question orchestration
	CategoryAPI           Category = "api"           // External LLM/generation calls
	CategoryJobs          Category = "jobs"          // Ingestion job records
	CategoryServer        Category = "server"        // HTTP API
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports.
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// configFile structure for reading .sensei/config.yaml.
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".sensei", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== sensei logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Debug mode: %v, level: %s", config.DebugMode, config.Level)

	return nil
}

// loadConfig reads the logging config from .sensei/config.yaml.
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".sensei", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// TIMER - duration helper for slow-path diagnostics
// =============================================================================

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, name string) *Timer {
	return &Timer{category: category, name: name, start: time.Now()}
}

// Stop logs the elapsed time for the operation.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	if elapsed > 500*time.Millisecond {
		Get(t.category).Warn("%s took %v (slow)", t.name, elapsed)
		return
	}
	Get(t.category).Debug("%s took %v", t.name, elapsed)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug output to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Embedding logs to the embedding category.
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug output to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Retrieval logs to the retrieval category.
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Info(format, args...)
}

// RetrievalDebug logs debug output to the retrieval category.
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// Rerank logs to the rerank category.
func Rerank(format string, args ...interface{}) {
	Get(CategoryRerank).Info(format, args...)
}

// Comprehension logs to the comprehension category.
func Comprehension(format string, args ...interface{}) {
	Get(CategoryComprehension).Info(format, args...)
}

// ComprehensionDebug logs debug output to the comprehension category.
func ComprehensionDebug(format string, args ...interface{}) {
	Get(CategoryComprehension).Debug(format, args...)
}

// Pedagogy logs to the pedagogy category.
func Pedagogy(format string, args ...interface{}) {
	Get(CategoryPedagogy).Info(format, args...)
}

// Tutor logs to the tutor category.
func Tutor(format string, args ...interface{}) {
	Get(CategoryTutor).Info(format, args...)
}

// API logs to the api category (external LLM calls).
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// Jobs logs to the jobs category.
func Jobs(format string, args ...interface{}) {
	Get(CategoryJobs).Info(format, args...)
}
