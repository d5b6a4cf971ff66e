// Package logging provides leveled logging and connection decision tracing.
//
// Operational output goes to a leveled slog.Logger. Builder decisions
// (skipped pairs, connect summaries, preparation) go to a DecisionLogger as
// JSONL so that large builds can be audited after the fact.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug. Per-pair decisions are only logged here.
const LevelTrace = slog.LevelDebug - 4

// DecisionFile is the name of the trace file inside the trace directory.
const DecisionFile = "decisions.jsonl"

// ParseLevel maps "info", "debug", "warn", "error" or "trace" to a level.
// Matching is case-insensitive; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger at level writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return newLogger(level, w, false)
}

// NewJSONLogger is NewLogger with a JSON handler.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return newLogger(level, w, true)
}

func newLogger(level string, w io.Writer, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		},
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// DecisionLogger appends decision events to a JSONL stream. It is safe for
// concurrent use, and every method is a no-op on a nil receiver.
type DecisionLogger struct {
	mu      sync.Mutex
	w       io.WriteCloser
	perPair bool
}

// NewDecisionLogger opens dir/decisions.jsonl for append. It returns nil at
// info level and above, or when the file cannot be opened. Per-pair events
// are written only at trace level.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	lvl := ParseLevel(level)
	if lvl >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{w: f, perPair: lvl <= LevelTrace}
}

// NewDecisionWriter wraps w. perPair enables LogSkip output.
func NewDecisionWriter(w io.WriteCloser, perPair bool) *DecisionLogger {
	return &DecisionLogger{w: w, perPair: perPair}
}

// Log writes event as one line with a "time" field added. The caller's map
// is left untouched.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w == nil {
		return
	}
	_, _ = dl.w.Write(data)
}

// LogSkip records a pair dropped by a builder.
func (dl *DecisionLogger) LogSkip(rule, synapse string, source, target uint64, thread int, reason string, err error) {
	if dl == nil || !dl.perPair {
		return
	}
	dl.Log(map[string]any{
		"event":   "pair_skipped",
		"rule":    rule,
		"synapse": synapse,
		"source":  source,
		"target":  target,
		"thread":  thread,
		"reason":  reason,
		"error":   err.Error(),
	})
}

// LogConnect records the outcome of one connect call.
func (dl *DecisionLogger) LogConnect(rule, synapse string, created, skipped int64, elapsed time.Duration, err error) {
	if dl == nil {
		return
	}
	event := map[string]any{
		"event":      "connect",
		"rule":       rule,
		"synapse":    synapse,
		"created":    created,
		"skipped":    skipped,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		event["error"] = err.Error()
	}
	dl.Log(event)
}

// LogPrepare records the delay window fixed for simulation.
func (dl *DecisionLogger) LogPrepare(minDelayMS, maxDelayMS float64, connections int64, keptSources bool) {
	if dl == nil {
		return
	}
	dl.Log(map[string]any{
		"event":             "prepare",
		"min_delay":         minDelayMS,
		"max_delay":         maxDelayMS,
		"num_connections":   connections,
		"keep_source_table": keptSources,
	})
}

// Close closes the underlying writer.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w != nil {
		dl.w.Close()
		dl.w = nil
	}
}
