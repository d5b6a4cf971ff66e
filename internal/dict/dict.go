// Package dict implements the configuration map passed through the
// connection core: string keys mapped to scalar or array values, with
// access tracking so that entries nobody read can be reported as errors.
//
// A Map is not safe for concurrent use. Workers that share a parameter set
// operate on their own Clone.
package dict

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nvandessel/connectome/internal/connerr"
)

type entry struct {
	value    any
	accessed bool
}

// Map is a configuration map with per-entry access flags.
// Read methods are safe to call on a nil *Map.
type Map struct {
	entries map[string]*entry
}

// New returns an empty map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// From builds a map from plain key/value pairs. Nested map[string]any values
// are kept as-is.
func From(values map[string]any) *Map {
	m := New()
	for k, v := range values {
		m.Set(k, v)
	}
	return m
}

// Set stores v under key and clears its access flag.
func (m *Map) Set(key string, v any) {
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	m.entries[key] = &entry{value: v}
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	delete(m.entries, key)
}

// Known reports whether key is present without marking it accessed.
func (m *Map) Known(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.entries[key]
	return ok
}

// Lookup returns the raw value stored under key and marks it accessed.
func (m *Map) Lookup(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	e.accessed = true
	return e.value, true
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Empty reports whether the map has no entries.
func (m *Map) Empty() bool { return m.Len() == 0 }

// Keys returns all keys in sorted order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the entries with fresh access flags.
// Slice values are copied; other values are shared.
func (m *Map) Clone() *Map {
	out := New()
	if m == nil {
		return out
	}
	for k, e := range m.entries {
		out.Set(k, cloneValue(e.value))
	}
	return out
}

// Raw returns a plain copy of the entries without marking them accessed.
func (m *Map) Raw() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for k, e := range m.entries {
		out[k] = e.value
	}
	return out
}

// ClearAccessFlags marks every entry as unread.
func (m *Map) ClearAccessFlags() {
	if m == nil {
		return
	}
	for _, e := range m.entries {
		e.accessed = false
	}
}

// MarkAccessed flags key as read without returning its value.
func (m *Map) MarkAccessed(key string) {
	if m == nil {
		return
	}
	if e, ok := m.entries[key]; ok {
		e.accessed = true
	}
}

// Unaccessed returns the sorted keys that were never read.
func (m *Map) Unaccessed() []string {
	if m == nil {
		return nil
	}
	var keys []string
	for k, e := range m.entries {
		if !e.accessed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// AllAccessed returns an ErrConfig naming every unread key, or nil.
func (m *Map) AllAccessed(where, what string) error {
	unread := m.Unaccessed()
	if len(unread) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: unread dictionary entries in %s: %s",
		connerr.ErrConfig, where, what, strings.Join(unread, ", "))
}

// Merge copies every entry of other into m, overwriting existing keys.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for k, e := range other.entries {
		m.Set(k, cloneValue(e.value))
	}
}

func cloneValue(v any) any {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...)
	case []int64:
		return append([]int64(nil), s...)
	case []uint64:
		return append([]uint64(nil), s...)
	case []int:
		return append([]int(nil), s...)
	case []any:
		return append([]any(nil), s...)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		// JSON and YAML decoders may hand integers over as floats.
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func mismatch(key, want string, v any) error {
	return fmt.Errorf("%w: %s: expected %s, got %T", connerr.ErrTypeMismatch, key, want, v)
}
