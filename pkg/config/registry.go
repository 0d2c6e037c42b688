// Package config holds the type-keyed configuration registry shared by a
// session and its collaborators. A Registry maps a configuration type to
// one instance of that type, fabricating defaults on first lookup, and can
// be copied so that independent callers get independent views.
package config

import (
	"reflect"
	"sync"
)

// Entry is one configuration value. CreateCopy is called when the owning
// Registry is copied; an entry decides per field whether the copy shares
// state with the original (a queue both views must see) or clones it.
type Entry interface {
	CreateCopy() Entry
}

// Registry is an ordered, type-keyed bag of configuration entries.
// It is immutable by convention: mutate entries, not the mapping, once a
// registry is shared.
type Registry struct {
	mu      sync.RWMutex
	order   []reflect.Type
	entries map[reflect.Type]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[reflect.Type]Entry),
	}
}

// Get returns the entry of prototype's type, fabricating and storing it
// via fabricate if the registry has none yet.
func Get[T Entry](r *Registry, fabricate func() T) T {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return entry.(T)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		return entry.(T)
	}
	fresh := fabricate()
	r.entries[key] = fresh
	r.order = append(r.order, key)
	return fresh
}

// Set stores entry under its own concrete type, replacing any existing
// entry of that type.
func (r *Registry) Set(entry Entry) {
	key := reflect.TypeOf(entry)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		r.order = append(r.order, key)
	}
	r.entries[key] = entry
}

// Copy creates a child registry: every entry is copied through its
// CreateCopy, in insertion order, so later fabrications in the child do
// not leak into the parent.
func (r *Registry) Copy() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	child := &Registry{
		order:   make([]reflect.Type, len(r.order)),
		entries: make(map[reflect.Type]Entry, len(r.entries)),
	}
	copy(child.order, r.order)
	for key, entry := range r.entries {
		child.entries[key] = entry.CreateCopy()
	}
	return child
}

// Len reports how many entry types the registry holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
