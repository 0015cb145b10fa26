// Package tools exposes Serper searches as agent tools with JSON Schema
// validated input.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrAlreadyRegistered is returned when a tool name is registered twice
var ErrAlreadyRegistered = errors.New("tool already registered")

// Tool is a capability an agent can invoke
type Tool interface {
	// Name returns the unique tool name, "package/tool"
	Name() string
	// Description returns a human-readable description of the tool
	Description() string
	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() json.RawMessage
	// Execute runs the tool with the given JSON arguments
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry is a thread-safe tool registry
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool with the given name, or nil if not found
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns the names of all registered tools, sorted alphabetically
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool with the given arguments
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", fmt.Errorf("unknown tool: %q", name)
	}
	return t.Execute(ctx, args)
}

// inputSchema is a compiled JSON Schema shared by all executions of a tool
type inputSchema struct {
	raw json.RawMessage

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

func newInputSchema(raw string) *inputSchema {
	return &inputSchema{raw: json.RawMessage(raw)}
}

// validate returns one message per schema violation
func (s *inputSchema) validate(args json.RawMessage) ([]string, error) {
	s.once.Do(func() {
		s.compiled, s.err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(s.raw))
	})
	if s.err != nil {
		return nil, fmt.Errorf("compiling input schema: %w", s.err)
	}

	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return nil, fmt.Errorf("validating input: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
