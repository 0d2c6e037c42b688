package core

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/usulkies/jdbi/pkg/config"
)

// ExtensionMethod identifies which capability method is currently
// executing on a handle, for diagnostics and transaction-annotation
// decisions made by nested code.
type ExtensionMethod struct {
	Capability reflect.Type
	Name       string
}

func (m ExtensionMethod) String() string {
	if m.Capability == nil {
		return m.Name
	}
	return m.Capability.String() + "." + m.Name
}

// HandleSupplier hands an extension implementation its backing session.
// The supplier a handle passes to factories always returns that handle.
type HandleSupplier interface {
	Handle() *Handle
}

type constantHandleSupplier struct {
	h *Handle
}

func (s constantHandleSupplier) Handle() *Handle {
	return s.h
}

// ExtensionFactory builds a capability implementation bound to the
// supplied handle. No code generation: a factory is a plain constructor
// closure registered per capability type.
type ExtensionFactory func(supplier HandleSupplier) any

// Extensions is the configuration entry resolving capability types to
// factories.
type Extensions struct {
	mu        sync.RWMutex
	factories map[reflect.Type]ExtensionFactory
}

func newExtensions() *Extensions {
	return &Extensions{
		factories: make(map[reflect.Type]ExtensionFactory),
	}
}

// ExtensionsConfig returns the Extensions entry of r, fabricating an
// empty one on first use.
func ExtensionsConfig(r *config.Registry) *Extensions {
	return config.Get(r, func() *Extensions { return newExtensions() })
}

// CreateCopy clones the factory mapping so registrations on a copy do not
// leak into the original.
func (e *Extensions) CreateCopy() config.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	copied := &Extensions{
		factories: make(map[reflect.Type]ExtensionFactory, len(e.factories)),
	}
	for key, factory := range e.factories {
		copied.factories[key] = factory
	}
	return copied
}

// Register binds a factory to a capability type, replacing any previous
// binding.
func (e *Extensions) Register(capability reflect.Type, factory ExtensionFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories[capability] = factory
}

// RegisterFor is Register with the capability type taken from T.
func RegisterFor[T any](e *Extensions, factory func(supplier HandleSupplier) T) {
	e.Register(reflect.TypeOf((*T)(nil)).Elem(), func(supplier HandleSupplier) any {
		return factory(supplier)
	})
}

// FindFor resolves a capability implementation bound to supplier.
func (e *Extensions) FindFor(capability reflect.Type, supplier HandleSupplier) (any, bool) {
	e.mu.RLock()
	factory, ok := e.factories[capability]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(supplier), true
}

// Attach builds a capability object backed by this handle. Every method
// of the returned object executes with this handle as its session; the
// object's usable lifetime ends when the handle closes.
func (h *Handle) Attach(capability reflect.Type) (any, error) {
	if capability == nil {
		return nil, NewError(ErrCodeInvalidParam, "capability type is required", nil)
	}
	impl, ok := ExtensionsConfig(h.Config()).FindFor(capability, constantHandleSupplier{h: h})
	if !ok {
		return nil, NewError(ErrCodeNoExtension, fmt.Sprintf("no extension registered for %s", capability), nil)
	}
	return impl, nil
}

// Attach is the typed variant of Handle.Attach.
func Attach[T any](h *Handle) (T, error) {
	var zero T
	capability := reflect.TypeOf((*T)(nil)).Elem()
	impl, err := h.Attach(capability)
	if err != nil {
		return zero, err
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, NewError(ErrCodeNoExtension,
			fmt.Sprintf("extension registered for %s does not implement it", capability), nil)
	}
	return typed, nil
}

// InExtensionMethod runs fn with m established as the calling goroutine's
// extension identity, restoring the previous identity afterward.
// Capability implementations wrap each public method in this; it enforces
// the handle's lifecycle, so invoking a capability after close fails the
// same way direct statement creation would.
func (h *Handle) InExtensionMethod(m ExtensionMethod, fn func() error) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	previous := h.ExtensionMethod()
	h.SetExtensionMethod(&m)
	defer h.SetExtensionMethod(previous)
	return fn()
}
