package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFileName is the JSONL file tool invocations are appended to.
const AuditFileName = "audit.jsonl"

// AuditEntry records one MCP tool invocation. It carries call metadata
// only, never connection data.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Mutating   bool              `json:"mutating,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use, and a nil AuditLogger is a no-op.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewAuditLogger opens dir/audit.jsonl for appending. If the file cannot
// be created a warning is printed to stderr and nil is returned; auditing
// is never fatal.
func NewAuditLogger(dir string) *AuditLogger {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, AuditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f, path: path}
}

// Path returns the audit file path, or "" for a nil logger.
func (a *AuditLogger) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Log appends entry as a single line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the audit file. Further entries are dropped.
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

// sanitizeToolParams extracts loggable metadata from tool parameters.
//
// Parameters fall into three groups:
//   - value params: key and value are logged (model names, limits, ports)
//   - presence-only params: the key is logged with "(set)" in place of the value
//   - everything else is not logged
//
// "_param_count" is always present.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	valueParams := map[string]bool{
		"synapse_model": true,
		"limit":         true,
		"thread":        true,
		"synapse_id":    true,
		"port":          true,
		"source":        true,
		"target":        true,
	}
	presenceOnlyParams := map[string]bool{
		"name":          true,
		"weight":        true,
		"delay":         true,
		"params":        true,
		"synapse_label": true,
		"archive_path":  true,
	}

	result := make(map[string]string)
	set := 0
	for key, val := range params {
		if isZeroParam(val) {
			continue
		}
		set++
		switch {
		case valueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", set)
	return result
}

func isZeroParam(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case *float64:
		return x == nil
	case *int64:
		return x == nil
	case []uint64:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// auditTool logs a tool invocation that started at start.
func (s *Server) auditTool(toolName string, mutating bool, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		Mutating:   mutating,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
