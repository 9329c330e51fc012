package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	UnknownFunction Kind = "unknown_function"
	HandlerFailed   Kind = "handler_failed"
)

// DispatchError is returned by Invoke. It is always converted into a result
// payload for the model, never swallowed.
type DispatchError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %q: %s: %v", e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("tool %q: %s", e.Name, e.Kind)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Handler executes one tool call. It may perform its own I/O; the caller
// bounds it with ctx.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	schema  Tool
	handler Handler
}

// Registry maps tool names to handlers plus their JSON-schema descriptors.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func (r *Registry) Register(schema Tool, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.entries[schema.Name] = entry{schema: schema, handler: h}
}

// List returns the registered schemas in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].schema)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Invoke resolves the handler by exact name match and runs it. Unknown names
// never reach a handler.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, *DispatchError) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &DispatchError{Kind: UnknownFunction, Name: name}
	}

	res, err := e.handler(ctx, args)
	if err != nil {
		return nil, &DispatchError{Kind: HandlerFailed, Name: name, Err: err}
	}
	return res, nil
}

// InvokeRaw decodes a JSON argument payload and invokes. A payload that does
// not decode counts as a handler failure so the model still gets an answer.
func (r *Registry) InvokeRaw(ctx context.Context, name string, rawArgs string) (any, *DispatchError) {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, &DispatchError{Kind: HandlerFailed, Name: name, Err: fmt.Errorf("decode arguments: %w", err)}
		}
	}
	return r.Invoke(ctx, name, args)
}
