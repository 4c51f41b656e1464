// Package jobs runs ingestion jobs against persisted, idempotent job
// records. A job submitted twice under the same id runs once; a job caught
// mid-flight by a process restart is marked failed on recovery instead of
// silently vanishing with the process.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sensei/internal/logging"
	"sensei/internal/store"
)

// =============================================================================
// INGESTION JOBS
// =============================================================================

// IngestRequest is the material one ingestion job loads into a session.
type IngestRequest struct {
	// JobID makes resubmission idempotent. Empty means the caller does not
	// care about dedup and a fresh id is minted.
	JobID     string                `json:"job_id"`
	SessionID string                `json:"session_id"`
	Topics    []store.Topic         `json:"topics,omitempty"`
	Chunks    []string              `json:"chunks,omitempty"`
	QAPairs   []store.QAPair        `json:"qa_pairs,omitempty"`
	Knowledge []store.KnowledgeItem `json:"knowledge,omitempty"`
}

// Manager executes ingestion jobs and owns their persisted records.
type Manager struct {
	store *store.LocalStore
}

// NewManager creates a job manager over the store.
func NewManager(s *store.LocalStore) *Manager {
	return &Manager{store: s}
}

// Recover marks jobs left running by a previous process as failed. Call once
// at startup, before accepting submissions.
func (m *Manager) Recover(ctx context.Context) (int64, error) {
	n, err := m.store.ResetStaleJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	if n > 0 {
		logging.Jobs("Marked %d stale job(s) as failed on startup", n)
	}
	return n, nil
}

// Submit runs an ingestion job. Resubmitting an id that already has a record
// returns that record without re-ingesting anything, whatever its status.
func (m *Manager) Submit(ctx context.Context, req IngestRequest) (store.JobRecord, error) {
	if req.SessionID == "" {
		return store.JobRecord{}, fmt.Errorf("ingest request missing session id")
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	detail := fmt.Sprintf("session=%s topics=%d chunks=%d qa=%d kb=%d",
		req.SessionID, len(req.Topics), len(req.Chunks), len(req.QAPairs), len(req.Knowledge))

	rec, created, err := m.store.CreateJob(ctx, req.JobID, "ingest", detail)
	if err != nil {
		return store.JobRecord{}, err
	}
	if !created {
		logging.Jobs("Job %s resubmitted, returning existing record (status=%s)", rec.ID, rec.Status)
		return rec, nil
	}

	timer := logging.StartTimer(logging.CategoryJobs, "ingest "+req.JobID)
	defer timer.Stop()

	if err := m.store.UpdateJobStatus(ctx, req.JobID, store.JobStatusRunning, ""); err != nil {
		return rec, err
	}

	if err := m.ingest(ctx, req); err != nil {
		if uerr := m.store.UpdateJobStatus(ctx, req.JobID, store.JobStatusFailed, err.Error()); uerr != nil {
			logging.Get(logging.CategoryJobs).Error("Failed to record job failure for %s: %v", req.JobID, uerr)
		}
		return m.Status(ctx, req.JobID)
	}

	if err := m.store.UpdateJobStatus(ctx, req.JobID, store.JobStatusCompleted, ""); err != nil {
		return rec, err
	}
	logging.Jobs("Job %s completed: %s", req.JobID, detail)
	logging.AuditInteraction(logging.AuditIngest, "", req.SessionID, map[string]interface{}{
		"job_id": req.JobID,
		"detail": detail,
	})
	return m.Status(ctx, req.JobID)
}

// Status returns the persisted record for a job id.
func (m *Manager) Status(ctx context.Context, jobID string) (store.JobRecord, error) {
	return m.store.GetJob(ctx, jobID)
}

func (m *Manager) ingest(ctx context.Context, req IngestRequest) error {
	for _, topic := range req.Topics {
		topic.SessionID = req.SessionID
		if err := m.store.AddTopic(topic); err != nil {
			return fmt.Errorf("failed to add topic %s: %w", topic.TopicID, err)
		}
	}

	if len(req.Chunks) > 0 {
		metas := make([]map[string]interface{}, len(req.Chunks))
		if _, err := m.store.AddChunkBatch(ctx, req.SessionID, req.Chunks, metas); err != nil {
			return fmt.Errorf("failed to add chunks: %w", err)
		}
	}

	if len(req.QAPairs) > 0 {
		if _, err := m.store.AddQAPairs(ctx, req.SessionID, req.QAPairs); err != nil {
			return fmt.Errorf("failed to add qa pairs: %w", err)
		}
	}

	for _, item := range req.Knowledge {
		item.SessionID = req.SessionID
		if _, err := m.store.AddKnowledgeItem(item); err != nil {
			return fmt.Errorf("failed to add knowledge item %q: %w", item.Title, err)
		}
	}

	return nil
}
