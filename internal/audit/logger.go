// Package audit appends security-relevant events (signups, logins, refresh
// rotations, logouts, counter mutations) to a JSONL file. Failures to write
// never block the request path; callers discard the error after best effort.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit line. At is stamped by the logger; everything else is
// the caller's.
type Event struct {
	At        string `json:"at"`
	Actor     string `json:"actor,omitempty"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type Logger struct {
	path    string
	nowFunc func() time.Time

	mu sync.Mutex
}

// NewLogger returns a logger appending to path. An empty path yields a
// logger that records nothing, for setups without an audit requirement.
func NewLogger(path string) *Logger {
	return &Logger{path: path, nowFunc: time.Now}
}

func (l *Logger) Log(e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	e.At = l.nowFunc().UTC().Format(time.RFC3339)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	// Audit lines name accounts; keep the file owner-only.
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}
