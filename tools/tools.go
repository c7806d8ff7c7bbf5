// Package tools defines the callable tool contract plus the registry and
// the pure transforms (namespacing, access-mode filtering) applied to
// provider catalogs before an invocation.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is a single callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	// ParameterSchema returns the tool's input contract as a JSON Schema
	// document.
	ParameterSchema() string
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Registry holds the assembled tool set for one invocation. Tool names
// must be unique; registration order is preserved.
type Registry struct {
	order  []string
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) error {
	if r == nil || r.byName == nil {
		return fmt.Errorf("registry is not initialized")
	}
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.byName[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.byName[strings.TrimSpace(name)]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// FuncTool adapts a plain function into a Tool. Remote tool catalogs are
// surfaced through it.
type FuncTool struct {
	name        string
	description string
	schema      string
	execute     func(ctx context.Context, params map[string]any) (string, error)
}

func NewFuncTool(name, description, schema string, execute func(ctx context.Context, params map[string]any) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, schema: schema, execute: execute}
}

func (t *FuncTool) Name() string            { return t.name }
func (t *FuncTool) Description() string     { return t.description }
func (t *FuncTool) ParameterSchema() string { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t == nil || t.execute == nil {
		return "", fmt.Errorf("tool %q is not initialized", t.name)
	}
	return t.execute(ctx, params)
}

type prefixed struct {
	Tool
	name string
}

func (p prefixed) Name() string { return p.name }

// ApplyPrefix namespaces every tool as "{prefix}_{name}" so catalogs from
// different providers cannot collide.
func ApplyPrefix(prefix string, list []Tool) []Tool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return list
	}
	out := make([]Tool, 0, len(list))
	for _, t := range list {
		out = append(out, prefixed{Tool: t, name: prefix + "_" + t.Name()})
	}
	return out
}

// FilterByPrefix keeps only tools whose (already namespaced) name starts
// with one of the allowed prefixes. An empty allow list keeps everything.
func FilterByPrefix(list []Tool, allowed []string) []Tool {
	if len(allowed) == 0 {
		return list
	}
	out := make([]Tool, 0, len(list))
	for _, t := range list {
		for _, p := range allowed {
			if strings.HasPrefix(t.Name(), p) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
