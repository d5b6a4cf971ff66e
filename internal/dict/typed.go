package dict

// Float returns the numeric value under key as float64.
// ok is false when the key is absent; err wraps ErrTypeMismatch when the
// value is not numeric.
func (m *Map) Float(key string) (float64, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, true, mismatch(key, "number", v)
	}
	return f, true, nil
}

// Int returns the integral value under key.
func (m *Map) Int(key string) (int64, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return 0, false, nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, true, mismatch(key, "integer", v)
	}
	return n, true, nil
}

// Bool returns the boolean value under key.
func (m *Map) Bool(key string) (bool, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, true, mismatch(key, "bool", v)
	}
	return b, true, nil
}

// String returns the string value under key.
func (m *Map) String(key string) (string, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, mismatch(key, "string", v)
	}
	return s, true, nil
}

// Floats returns a numeric array under key. A scalar is returned as a
// single-element slice.
func (m *Map) Floats(key string) ([]float64, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	if f, ok := toFloat(v); ok {
		return []float64{f}, true, nil
	}
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), true, nil
	case []int:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, true, nil
	case []any:
		out := make([]float64, len(s))
		for i, item := range s {
			f, ok := toFloat(item)
			if !ok {
				return nil, true, mismatch(key, "number array", v)
			}
			out[i] = f
		}
		return out, true, nil
	default:
		return nil, true, mismatch(key, "number array", v)
	}
}

// Uints returns a non-negative integer array under key (e.g. node ids).
func (m *Map) Uints(key string) ([]uint64, bool, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	if n, ok := toInt(v); ok && n >= 0 {
		return []uint64{uint64(n)}, true, nil
	}
	var items []any
	switch s := v.(type) {
	case []uint64:
		return append([]uint64(nil), s...), true, nil
	case []int:
		items = make([]any, len(s))
		for i, n := range s {
			items[i] = n
		}
	case []int64:
		items = make([]any, len(s))
		for i, n := range s {
			items[i] = n
		}
	case []float64:
		items = make([]any, len(s))
		for i, n := range s {
			items[i] = n
		}
	case []any:
		items = s
	default:
		return nil, true, mismatch(key, "id array", v)
	}
	out := make([]uint64, len(items))
	for i, item := range items {
		n, ok := toInt(item)
		if !ok || n < 0 {
			return nil, true, mismatch(key, "id array", v)
		}
		out[i] = uint64(n)
	}
	return out, true, nil
}

// UpdateFloat overwrites *dst with the value under key if present.
func (m *Map) UpdateFloat(key string, dst *float64) (bool, error) {
	f, ok, err := m.Float(key)
	if err != nil || !ok {
		return false, err
	}
	*dst = f
	return true, nil
}

// UpdateInt overwrites *dst with the value under key if present.
func (m *Map) UpdateInt(key string, dst *int) (bool, error) {
	n, ok, err := m.Int(key)
	if err != nil || !ok {
		return false, err
	}
	*dst = int(n)
	return true, nil
}

// UpdateInt64 overwrites *dst with the value under key if present.
func (m *Map) UpdateInt64(key string, dst *int64) (bool, error) {
	n, ok, err := m.Int(key)
	if err != nil || !ok {
		return false, err
	}
	*dst = n
	return true, nil
}

// UpdateBool overwrites *dst with the value under key if present.
func (m *Map) UpdateBool(key string, dst *bool) (bool, error) {
	b, ok, err := m.Bool(key)
	if err != nil || !ok {
		return false, err
	}
	*dst = b
	return true, nil
}

// UpdateString overwrites *dst with the value under key if present.
func (m *Map) UpdateString(key string, dst *string) (bool, error) {
	s, ok, err := m.String(key)
	if err != nil || !ok {
		return false, err
	}
	*dst = s
	return true, nil
}
