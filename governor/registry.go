// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Implementation executes a tool with schema-validated input and returns its
// raw output, which is validated and redacted before leaving the governor.
type Implementation interface {
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// ImplementationFunc adapts a function to the Implementation interface
type ImplementationFunc func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Execute calls fn
func (fn ImplementationFunc) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	return fn(ctx, args)
}

// Registration pairs a contract with its implementation
type Registration struct {
	Contract *ToolContract
	Impl     Implementation
}

// Registry maps tool names to their contract and implementation. The
// governor only reads from it; registration happens at wiring time.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds a tool. Registering a nil contract or implementation, or a
// name that is already taken, is an error.
func (r *Registry) Register(contract *ToolContract, impl Implementation) error {
	if contract == nil {
		return fmt.Errorf("tool contract must not be nil")
	}
	if impl == nil {
		return ErrNilImplementation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[contract.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, contract.Name)
	}
	r.tools[contract.Name] = Registration{Contract: contract, Impl: impl}
	return nil
}

// Lookup returns the registration for name, if present.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
