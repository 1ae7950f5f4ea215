package settings

import (
	"strings"
	"sync"
)

// Settings is the engine tuning surface: a nested table merged from the
// compiled-in defaults and a caller-supplied override map, addressed by
// dotted paths ("roundTypes.duel.weight").
type Settings struct {
	mu     sync.RWMutex
	values map[string]any
}

// New merges overrides on top of the defaults table. Overrides replace
// leaves; nested maps are merged key by key.
func New(overrides map[string]any) *Settings {
	values := deepCopy(Defaults())
	mergeInto(values, overrides)
	return &Settings{values: values}
}

// Get returns the raw value at path.
func (s *Settings) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.values, path)
}

// Set updates a single path. Used by the config:updated flow.
func (s *Settings) Set(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assign(s.values, path, value)
}

// Float returns the value at path as float64, or def when unset or not
// numeric. Integer literals in the table are accepted.
func (s *Settings) Float(path string, def float64) float64 {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// Int returns the value at path as int, or def.
func (s *Settings) Int(path string, def int) int {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

// String returns the value at path as string, or def.
func (s *Settings) String(path string, def string) string {
	if v, ok := s.Get(path); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Strings returns the value at path as a string slice, or nil.
func (s *Settings) Strings(path string) []string {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Floats returns the value at path as a float slice, or nil.
func (s *Settings) Floats(path string) []float64 {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []float64:
		return append([]float64(nil), list...)
	case []any:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	}
	return nil
}

// Ints returns the value at path as an int slice, or nil.
func (s *Settings) Ints(path string) []int {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []int:
		return append([]int(nil), list...)
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	}
	return nil
}

// Section returns the nested map at path, or nil. The result is the live
// table; callers must not mutate it.
func (s *Settings) Section(path string) map[string]any {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// List returns the value at path as a slice of maps, used for tables like
// subVariants and modifier options.
func (s *Settings) List(path string) []map[string]any {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// Snapshot returns a deep copy of the full table, used for checkpoints.
func (s *Settings) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.values)
}

func lookup(values map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := values
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

func assign(values map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := values
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeInto(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

func deepCopy(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			out[k] = deepCopy(m)
			continue
		}
		out[k] = v
	}
	return out
}
