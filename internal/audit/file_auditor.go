package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp    string   `json:"ts"`
	QueryID      string   `json:"query_id"`
	Tool         string   `json:"tool,omitempty"`
	Database     string   `json:"database,omitempty"`
	SQL          string   `json:"sql"`
	Preview      string   `json:"preview"`
	Accepted     bool     `json:"accepted"`
	Reason       string   `json:"reason,omitempty"`
	Tables       []string `json:"tables,omitempty"`
	RowsReturned int      `json:"rows_returned"`
	DurationMS   int64    `json:"duration_ms"`
	Error        *string  `json:"error"`
}

// FileAuditor writes every gatekeeper decision as NDJSON (one JSON object
// per line). Rejected queries are recorded too.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:    a.now().UTC().Format(time.RFC3339),
		QueryID:      entry.QueryID,
		Tool:         entry.Tool,
		Database:     entry.Database,
		SQL:          entry.SQL,
		Preview:      entry.Preview,
		Accepted:     entry.Accepted,
		Reason:       entry.Reason,
		Tables:       entry.Tables,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
