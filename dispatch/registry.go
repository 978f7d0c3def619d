package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
)

// Handler receives a message whose text matched its pattern.
type Handler func(ctx context.Context, msg *message.Message) error

// MatchHandler receives the message together with the match result.
type MatchHandler func(ctx context.Context, msg *message.Message, match Match) error

// Mode selects how a handler is executed.
type Mode int

const (
	// ModeAsync runs the handler on its own goroutine. Dispatch does not wait
	// for it.
	ModeAsync Mode = iota
	// ModePooled runs the handler on the bounded worker pool. Dispatch waits
	// for it before trying the next pattern.
	ModePooled
)

func (m Mode) String() string {
	if m == ModePooled {
		return "pooled"
	}
	return "async"
}

// Match is the result of a full-text pattern match.
type Match struct {
	Pattern string
	// Groups[0] is the whole text, Groups[i] the i-th capture group.
	Groups []string
	names  []string
}

// Group returns capture group i, or "" when out of range.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Named returns the named capture group.
func (m Match) Named(name string) (string, bool) {
	for i, n := range m.names {
		if n != "" && n == name && i < len(m.Groups) {
			return m.Groups[i], true
		}
	}
	return "", false
}

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

// Pooled runs the handler on the worker pool instead of its own goroutine.
func Pooled() RegisterOption {
	return func(r *registration) {
		r.mode = ModePooled
	}
}

type registration struct {
	pattern string
	re      *regexp.Regexp
	arity   int
	mode    Mode
	call    func(ctx context.Context, msg *message.Message, match Match) error
}

func (r *registration) match(text string) (Match, bool) {
	groups := r.re.FindStringSubmatch(text)
	if groups == nil {
		return Match{}, false
	}
	return Match{Pattern: r.pattern, Groups: groups, names: r.re.SubexpNames()}, true
}

// Registry holds the pattern handlers. It is written during setup and frozen
// when a Dispatcher starts; later registrations fail with ErrRegistrySealed.
type Registry struct {
	mu      sync.Mutex
	entries []*registration
	index   map[string]struct{}
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]struct{})}
}

// Handle registers a handler that takes only the message.
func (r *Registry) Handle(pattern string, h Handler, opts ...RegisterOption) error {
	if h == nil {
		return errors.WrapInvalid(fmt.Errorf("nil handler for %q", pattern), "Registry", "Handle", "register handler")
	}
	return r.add(pattern, 1, func(ctx context.Context, msg *message.Message, _ Match) error {
		return h(ctx, msg)
	}, opts)
}

// HandleMatch registers a handler that also receives the match result.
func (r *Registry) HandleMatch(pattern string, h MatchHandler, opts ...RegisterOption) error {
	if h == nil {
		return errors.WrapInvalid(fmt.Errorf("nil handler for %q", pattern), "Registry", "HandleMatch", "register handler")
	}
	return r.add(pattern, 2, h, opts)
}

func (r *Registry) add(pattern string, arity int, call func(context.Context, *message.Message, Match) error, opts []RegisterOption) error {
	// Anchored so that the whole text must match
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return fmt.Errorf("pattern %q: %w: %v", pattern, errors.ErrInvalidPattern, err)
	}

	reg := &registration{pattern: pattern, re: re, arity: arity, call: call}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("pattern %q: %w", pattern, ErrRegistrySealed)
	}
	if _, dup := r.index[pattern]; dup {
		return fmt.Errorf("pattern %q: %w", pattern, errors.ErrDuplicatePattern)
	}
	r.index[pattern] = struct{}{}
	r.entries = append(r.entries, reg)
	return nil
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Patterns returns the registered patterns in registration order.
func (r *Registry) Patterns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.pattern
	}
	return out
}

// seal freezes the registry and returns its entries.
func (r *Registry) seal() []*registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return append([]*registration(nil), r.entries...)
}
