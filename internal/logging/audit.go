package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT TRAIL - structured interaction events
// =============================================================================

// AuditEventType identifies one kind of tutoring interaction.
type AuditEventType string

const (
	AuditAnswer    AuditEventType = "answer"    // question answered
	AuditNoAnswer  AuditEventType = "no_answer" // no-material terminal state
	AuditReaction  AuditEventType = "reaction"  // learner feedback applied
	AuditIngest    AuditEventType = "ingest"    // ingestion job finished
	AuditGenFailed AuditEventType = "gen_failed"
)

// AuditEvent is one JSONL record in the audit trail. Fields holds
// event-specific detail (decision action, score, job status).
type AuditEvent struct {
	Timestamp time.Time              `json:"ts"`
	Type      AuditEventType         `json:"type"`
	LearnerID string                 `json:"learner_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger appends interaction events to a JSONL file. Events are the
// record of what the tutor did and why, separate from diagnostic logs.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var (
	auditOnce   sync.Once
	auditLogger *AuditLogger
)

// AuditTrail returns the process-wide audit logger, creating
// .sensei/logs/audit.jsonl on first use. Returns nil before Initialize has
// set a workspace; auditing is then disabled.
func AuditTrail() *AuditLogger {
	auditOnce.Do(func() {
		if workspace == "" {
			return
		}
		dir := filepath.Join(workspace, ".sensei", "logs")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return
		}
		path := filepath.Join(dir, "audit.jsonl")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		auditLogger = &AuditLogger{file: f, path: path}
	})
	return auditLogger
}

// Audit appends one event to the trail. Safe on a nil logger so call sites
// never need to guard.
func (a *AuditLogger) Audit(eventType AuditEventType, learnerID, sessionID string, fields map[string]interface{}) {
	if a == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		LearnerID: learnerID,
		SessionID: sessionID,
		Fields:    fields,
	}

	data, err := json.Marshal(event)
	if err != nil {
		Get(CategoryBoot).Error("Failed to marshal audit event: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	fmt.Fprintln(a.file, string(data))
}

// Close flushes and closes the trail file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// AuditInteraction is the package-level convenience wrapper.
func AuditInteraction(eventType AuditEventType, learnerID, sessionID string, fields map[string]interface{}) {
	AuditTrail().Audit(eventType, learnerID, sessionID, fields)
}
