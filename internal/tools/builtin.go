package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/skeinworks/skein"
)

// NewCalculateTool evaluates an arithmetic expression, e.g. "2 * 1.5 / 0.3".
func NewCalculateTool() *FuncTool {
	return NewFuncTool("calculate",
		func(ctx context.Context, input string) (string, error) {
			expr, err := govaluate.NewEvaluableExpression(input)
			if err != nil {
				return "", skein.NewValidationError("execution",
					fmt.Sprintf("cannot parse expression %q", input), err)
			}
			result, err := expr.Evaluate(nil)
			if err != nil {
				return "", skein.NewValidationError("execution",
					fmt.Sprintf("cannot evaluate expression %q", input), err)
			}
			return formatResult(result), nil
		},
		WithDescription("Evaluate an arithmetic expression, e.g. calculate[2 * 1.5 / 0.3]."),
		WithValidator(func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("expression is empty")
			}
			return nil
		}),
	)
}

// NewClockTool reports the current date and time.
func NewClockTool() *FuncTool {
	return NewClockToolAt(time.Now)
}

// NewClockToolAt is the injectable variant used by tests.
func NewClockToolAt(now func() time.Time) *FuncTool {
	return NewFuncTool("clock",
		func(ctx context.Context, input string) (string, error) {
			t := now()
			switch strings.ToLower(strings.TrimSpace(input)) {
			case "date":
				return t.Format("2006-01-02"), nil
			case "time":
				return t.Format("15:04:05"), nil
			default:
				return t.Format(time.RFC3339), nil
			}
		},
		WithDescription("Current date and time. Input \"date\", \"time\", or empty for both."),
	)
}

// NewSearchTool is a deterministic offline stand-in for a web search backend.
// Swap in a real implementation via Registry.Register.
func NewSearchTool() *FuncTool {
	return NewFuncTool("search",
		func(ctx context.Context, input string) (string, error) {
			return fmt.Sprintf("[offline] no live results for %q; rephrase or answer from prior steps", input), nil
		},
		WithDescription("Search the web for a short factual answer."),
		WithValidator(func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("search query is empty")
			}
			return nil
		}),
	)
}

// NewBuiltinRegistry returns a registry holding every builtin tool.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(NewCalculateTool(), NewClockTool(), NewSearchTool())
}

// formatResult renders a govaluate result, dropping the trailing ".0" on
// whole floats so "2*3" comes back as "6".
func formatResult(result interface{}) string {
	if f, ok := result.(float64); ok {
		if f == float64(int64(f)) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%g", f)
	}
	return fmt.Sprintf("%v", result)
}
