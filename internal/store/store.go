// Package store implements SQLite persistence for sensei: course chunks with
// embeddings, QA pairs, curated knowledge-base entries, session topic catalogs,
// per-learner comprehension records, and ingestion job records.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"sensei/internal/embedding"
	"sensei/internal/logging"
)

// LocalStore is the single SQLite-backed store for all sensei state.
type LocalStore struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	embeddingEngine embedding.Engine // optional, required for chunk/QA writes
	vecReady        bool             // vec0 index created (sqlite_vec builds only)
}

// NewLocalStore initializes the SQLite database at the given path.
// Use ":memory:" for tests.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and substantially faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);

	CREATE TABLE IF NOT EXISTS qa_pairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		question_embedding TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_qa_session_topic ON qa_pairs(session_id, topic_id);

	CREATE TABLE IF NOT EXISTS knowledge_base (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		confidence REAL DEFAULT 1.0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_kb_session_topic ON knowledge_base(session_id, topic_id);

	CREATE TABLE IF NOT EXISTS topics (
		topic_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		keywords TEXT NOT NULL,
		PRIMARY KEY (session_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS comprehension (
		learner_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		score REAL NOT NULL,
		history TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (learner_id, session_id)
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SetEmbeddingEngine configures the embedding engine for this store.
// Must be called before chunk or QA-pair writes.
func (s *LocalStore) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Store("Closing LocalStore at %s", s.dbPath)
	return s.db.Close()
}
