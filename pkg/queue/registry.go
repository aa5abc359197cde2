package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type (
	// Processor is resolved from a job's stored reference and executes
	// the job's entity. Blocking reports whether the processor performs
	// synchronous work that must run inside the bounded executor pool
	// rather than inline in a polling loop.
	Processor interface {
		Name() string
		Blocking() bool
		Process(ctx context.Context, entity json.RawMessage) (any, error)
	}

	// ProcessorFunc is a typed non-blocking processor body.
	ProcessorFunc[T any] func(ctx context.Context, entity T) (any, error)

	// BlockingFunc is a typed blocking processor body. It takes no
	// context: blocking work is not assumed to be cancellable.
	BlockingFunc[T any] func(entity T) (any, error)

	// CallbackPayload is the fixed shape delivered to success/failure
	// callbacks. Exactly one of Result and Err is meaningful.
	CallbackPayload struct {
		OperationID uuid.UUID
		Entity      json.RawMessage
		Result      any
		Err         error
	}

	// CallbackFunc is a user-supplied success or failure hook.
	CallbackFunc func(ctx context.Context, payload CallbackPayload) error
)

// NewProcessor creates a non-blocking processor. The entity is decoded
// into T before the function runs; a decode failure is reported as a
// processing error.
func NewProcessor[T any](name string, fn ProcessorFunc[T]) Processor {
	return &typedProcessor[T]{name: name, fn: fn}
}

// NewBlockingProcessor creates a processor that the worker dispatches to
// the executor pool. No per-attempt timeout is enforced once it runs;
// only admission-time saturation protection applies.
func NewBlockingProcessor[T any](name string, fn BlockingFunc[T]) Processor {
	return &typedProcessor[T]{
		name:     name,
		blocking: true,
		fn: func(_ context.Context, entity T) (any, error) {
			return fn(entity)
		},
	}
}

type typedProcessor[T any] struct {
	name     string
	blocking bool
	fn       ProcessorFunc[T]
}

func (p *typedProcessor[T]) Name() string   { return p.name }
func (p *typedProcessor[T]) Blocking() bool { return p.blocking }

func (p *typedProcessor[T]) Process(ctx context.Context, entity json.RawMessage) (any, error) {
	var t T
	if err := json.Unmarshal(entity, &t); err != nil {
		return nil, fmt.Errorf("decode entity for %q: %w", p.name, err)
	}
	return p.fn(ctx, t)
}

// Registry maps (name, module) references to processors and callbacks.
// It is populated at process start; an unresolved reference is a typed
// error, never a silent nil.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	callbacks  map[string]CallbackFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
		callbacks:  make(map[string]CallbackFunc),
	}
}

// Register adds a processor under its own name with no module qualifier.
func (r *Registry) Register(p Processor) {
	r.RegisterInModule("", p)
}

// RegisterInModule adds a processor under a module namespace.
func (r *Registry) RegisterInModule(module string, p Processor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[refKey(Ref{Name: p.Name(), Module: module})] = p
}

// RegisterCallback adds a callback under a plain name.
func (r *Registry) RegisterCallback(name string, fn CallbackFunc) {
	r.RegisterCallbackInModule("", name, fn)
}

// RegisterCallbackInModule adds a callback under a module namespace.
func (r *Registry) RegisterCallbackInModule(module, name string, fn CallbackFunc) {
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[refKey(Ref{Name: name, Module: module})] = fn
}

// Resolve returns the processor for a stored reference. A module-qualified
// lookup falls back to the bare name, so processors registered without a
// module still serve qualified refs. Returns ErrProcessorNotFound when
// nothing matches.
func (r *Registry) Resolve(ref Ref) (Processor, error) {
	if ref.IsZero() {
		return nil, ErrProcessorRefEmpty
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.processors[refKey(ref)]; ok {
		return p, nil
	}
	if ref.Module != "" {
		if p, ok := r.processors[refKey(Ref{Name: ref.Name})]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProcessorNotFound, ref)
}

// ResolveCallback returns the callback for a stored reference, with the
// same fallback rule as Resolve.
func (r *Registry) ResolveCallback(ref Ref) (CallbackFunc, error) {
	if ref.IsZero() {
		return nil, ErrCallbackNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.callbacks[refKey(ref)]; ok {
		return fn, nil
	}
	if ref.Module != "" {
		if fn, ok := r.callbacks[refKey(Ref{Name: ref.Name})]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCallbackNotFound, ref)
}

// Size returns the number of registered processors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

func refKey(ref Ref) string {
	var b strings.Builder
	b.WriteString(ref.Module)
	b.WriteByte(0)
	b.WriteString(ref.Name)
	return b.String()
}
