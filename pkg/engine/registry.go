package engine

import (
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Registry resolves method identifiers to adapters. Adapters register under
// a method-name glob pattern ("xtb*" claims xtb, xtb-gfn2, ...); resolution
// prefers an exact-name registration over pattern matches so a specialized
// adapter can shadow a family one.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]Adapter
	patterns []patternEntry
}

type patternEntry struct {
	pattern string
	adapter Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]Adapter)}
}

// Register adds an adapter under its method pattern. Registering the same
// exact name or pattern twice is a programming error.
func (r *Registry) Register(a Adapter) error {
	pattern := a.Method()
	if pattern == "" {
		return fmt.Errorf("adapter has empty method pattern")
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid method pattern %q", pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if isLiteral(pattern) {
		if _, dup := r.exact[pattern]; dup {
			return fmt.Errorf("adapter already registered for method %q", pattern)
		}
		r.exact[pattern] = a
		return nil
	}
	for _, e := range r.patterns {
		if e.pattern == pattern {
			return fmt.Errorf("adapter already registered for pattern %q", pattern)
		}
	}
	r.patterns = append(r.patterns, patternEntry{pattern: pattern, adapter: a})
	return nil
}

// Resolve returns the adapter claiming the given method identifier, or
// ErrUnsupportedMethod if none is registered.
func (r *Registry) Resolve(method string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.exact[method]; ok {
		return a, nil
	}
	for _, e := range r.patterns {
		ok, err := doublestar.Match(e.pattern, method)
		if err == nil && ok {
			return e.adapter, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

// Methods returns every registered pattern, exact names first.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.exact)+len(r.patterns))
	for name := range r.exact {
		out = append(out, name)
	}
	for _, e := range r.patterns {
		out = append(out, e.pattern)
	}
	return out
}

// isLiteral reports whether the pattern contains no glob metacharacters.
func isLiteral(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return false
		}
	}
	return true
}
