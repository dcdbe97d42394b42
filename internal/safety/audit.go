package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNilWriter is returned by AuditLogger.Log when the logger has no writer.
var ErrNilWriter = errors.New("audit logger: writer is nil")

// AuditEntry records one attempted mutation.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Source    string         `json:"source"`
	Params    map[string]any `json:"params,omitempty"`
	Result    string         `json:"result"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// AuditLogger writes entries as newline-delimited JSON. It is safe for
// concurrent use. A nil *AuditLogger is valid and drops every entry.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAuditLogger returns a logger writing to w, or nil when w is nil.
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		return nil
	}
	return &AuditLogger{w: w}
}

// OpenAuditLog opens path for appending, creating it and its directory if
// needed. The caller closes the returned file.
func OpenAuditLog(path string) (*AuditLogger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewAuditLogger(f), f, nil
}

// Log writes entry as a single JSON line. A zero Timestamp is set to now.
func (l *AuditLogger) Log(entry AuditEntry) error {
	if l == nil || l.w == nil {
		return ErrNilWriter
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}
