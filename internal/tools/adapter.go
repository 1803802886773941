package tools

import (
	"context"
	"fmt"

	"github.com/skeinworks/skein"
)

// ToolFunc is a plain Go function exposed as a tool.
type ToolFunc func(ctx context.Context, input string) (string, error)

// FuncTool adapts a ToolFunc to the skein.Tool interface.
type FuncTool struct {
	name        string
	description string
	fn          ToolFunc
	validator   func(input string) error
}

// FuncToolOption configures a FuncTool.
type FuncToolOption func(*FuncTool)

// WithDescription sets the tool's description, shown to the planner.
func WithDescription(description string) FuncToolOption {
	return func(t *FuncTool) {
		t.description = description
	}
}

// WithValidator sets an input validator run before every execution.
func WithValidator(validator func(input string) error) FuncToolOption {
	return func(t *FuncTool) {
		t.validator = validator
	}
}

// NewFuncTool wraps fn as a named tool.
func NewFuncTool(name string, fn ToolFunc, options ...FuncToolOption) *FuncTool {
	t := &FuncTool{
		name:        name,
		description: name,
		fn:          fn,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Name returns the tool name.
func (t *FuncTool) Name() string { return t.name }

// Description returns the tool description.
func (t *FuncTool) Description() string { return t.description }

// Validate runs the configured validator, if any.
func (t *FuncTool) Validate(input string) error {
	if t.validator == nil {
		return nil
	}
	return t.validator(input)
}

// Execute runs the wrapped function.
func (t *FuncTool) Execute(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.fn == nil {
		return "", skein.NewInternalError("execution",
			fmt.Sprintf("tool %q has no implementation", t.name), nil)
	}
	return t.fn(ctx, input)
}
