package core

import (
	"sync"

	"github.com/petermattis/goid"
)

// goroutineLocal stores one value per goroutine, keyed by goroutine id.
// It backs the handle's per-caller configuration and extension-identity
// slots: goroutines sharing one handle get independent views, and close
// wipes every view so long-lived worker goroutines keep no references.
type goroutineLocal[T any] struct {
	values sync.Map // goroutine id -> T
}

func (l *goroutineLocal[T]) get() (T, bool) {
	v, ok := l.values.Load(goid.Get())
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func (l *goroutineLocal[T]) set(value T) {
	l.values.Store(goid.Get(), value)
}

func (l *goroutineLocal[T]) remove() {
	l.values.Delete(goid.Get())
}

// clear removes every goroutine's value, not just the caller's.
func (l *goroutineLocal[T]) clear() {
	l.values.Range(func(key, _ any) bool {
		l.values.Delete(key)
		return true
	})
}
