package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Store is a path-addressed key/value store. Paths use dotted notation
// ("match.progress.percent") over nested maps. Subscribers are notified
// after each committed change with the full path and new value.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
	nextID int
	subs   map[int]*subscriber
	logger zerolog.Logger
}

type subscriber struct {
	prefix string
	fn     func(path string, value any)
}

// NewStore creates an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		values: make(map[string]any),
		subs:   make(map[int]*subscriber),
		logger: logger.With().Str("component", "state_store").Logger(),
	}
}

// Get returns the value at path, or false if the path is unset.
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.values, path)
}

// Set writes a single value and notifies subscribers.
func (s *Store) Set(path string, value any) {
	s.mu.Lock()
	assign(s.values, path, value)
	notify := s.matchingSubscribers(path)
	s.mu.Unlock()

	for _, fn := range notify {
		fn(path, value)
	}
}

// Delete removes the value at path. Deleting an unset path is a no-op.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	existed := remove(s.values, path)
	var notify []func(string, any)
	if existed {
		notify = s.matchingSubscribers(path)
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(path, nil)
	}
}

// Subscribe registers fn for every change under the given path prefix.
// An empty prefix receives all changes. Returns an unsubscribe function.
func (s *Store) Subscribe(prefix string, fn func(path string, value any)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = &subscriber{prefix: prefix, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Begin opens a batch. Writes collected on the batch are invisible until
// Commit applies them all at once; Discard drops them.
func (s *Store) Begin() *Batch {
	return &Batch{store: s}
}

func (s *Store) matchingSubscribers(path string) []func(string, any) {
	var out []func(string, any)
	for _, sub := range s.subs {
		if sub.prefix == "" || path == sub.prefix || strings.HasPrefix(path, sub.prefix+".") {
			out = append(out, sub.fn)
		}
	}
	return out
}

type op struct {
	path   string
	value  any
	delete bool
}

// Batch buffers writes for an all-or-nothing commit.
type Batch struct {
	store *Store
	ops   []op
	done  bool
}

// Set buffers a write.
func (b *Batch) Set(path string, value any) *Batch {
	b.ops = append(b.ops, op{path: path, value: value})
	return b
}

// Delete buffers a removal.
func (b *Batch) Delete(path string) *Batch {
	b.ops = append(b.ops, op{path: path, delete: true})
	return b
}

// Commit applies every buffered operation under one lock, then notifies
// subscribers once per changed path, in path order. A batch can only be
// committed once.
func (b *Batch) Commit() {
	if b.done {
		return
	}
	b.done = true

	s := b.store
	s.mu.Lock()
	changed := make(map[string]any, len(b.ops))
	for _, o := range b.ops {
		if o.delete {
			remove(s.values, o.path)
			changed[o.path] = nil
			continue
		}
		assign(s.values, o.path, o.value)
		changed[o.path] = o.value
	}
	type pending struct {
		path  string
		value any
		fns   []func(string, any)
	}
	notifications := make([]pending, 0, len(changed))
	for path, value := range changed {
		notifications = append(notifications, pending{path, value, s.matchingSubscribers(path)})
	}
	s.mu.Unlock()

	sort.Slice(notifications, func(i, j int) bool { return notifications[i].path < notifications[j].path })
	for _, n := range notifications {
		for _, fn := range n.fns {
			fn(n.path, n.value)
		}
	}
}

// Discard drops the buffered operations without applying them.
func (b *Batch) Discard() {
	b.done = true
	b.ops = nil
}

// lookup walks nested maps along a dotted path.
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

// assign writes a value along a dotted path, creating intermediate maps.
// A non-map intermediate value is overwritten.
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

// remove deletes the leaf at a dotted path. Returns whether it existed.
func remove(values map[string]any, path string) bool {
	parts := strings.Split(path, ".")
	current := values
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := current[leaf]; !ok {
		return false
	}
	delete(current, leaf)
	return true
}
