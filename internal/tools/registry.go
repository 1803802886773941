// Package tools provides the tool registry and the builtin tools.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
)

// Registry maps tool names to implementations and dispatches execution.
// Unknown tool names yield a typed TOOL_NOT_FOUND error; error signaling is
// uniform, never a sentinel string in the result.
type Registry struct {
	mutex sync.RWMutex
	tools map[string]skein.Tool
}

// NewRegistry creates a registry pre-populated with the given tools.
func NewRegistry(tools ...skein.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]skein.Tool, len(tools))}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool, rejecting duplicate names.
func (r *Registry) Register(tool skein.Tool) error {
	if tool == nil {
		return skein.NewValidationError("initialization", "tool cannot be nil", nil)
	}
	name := tool.Name()
	if name == "" {
		return skein.NewValidationError("initialization", "tool has no name", nil)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.tools[name]; exists {
		return skein.NewValidationError("initialization",
			fmt.Sprintf("tool %q already registered", name), nil)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (skein.Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute validates the input and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name, input string) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", skein.NewToolNotFoundError("execution", name)
	}

	if err := tool.Validate(input); err != nil {
		return "", skein.NewValidationError("execution",
			fmt.Sprintf("invalid input for tool %q", name), err)
	}

	result, err := tool.Execute(ctx, input)
	if err != nil {
		log.Debug().Str("tool", name).Err(err).Msg("tool execution failed")
		return "", err
	}
	return result, nil
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptions renders one line per tool, sorted by name, for prompts.
func (r *Registry) Descriptions() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.tools[name].Description())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Schema returns tool name -> description, for the planner.
func (r *Registry) Schema() map[string]string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	schema := make(map[string]string, len(r.tools))
	for name, tool := range r.tools {
		schema[name] = tool.Description()
	}
	return schema
}
