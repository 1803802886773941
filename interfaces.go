package skein

import "context"

// Planner generates an execution plan (DAG) from user input.
type Planner interface {
	GeneratePlan(ctx context.Context, input PlannerInput) (*ExecutionPlan, error)
}

// Executor drives an execution plan to completion and returns the recorded
// results keyed by task ID.
type Executor interface {
	ExecutePlan(ctx context.Context, plan *ExecutionPlan) (map[string]string, error)
}

// Solver synthesizes the final user-facing answer from the executed plan.
type Solver interface {
	Synthesize(ctx context.Context, query string, plan *ExecutionPlan) (string, error)
}

// Generator is the language-model boundary: one prompt in, one completion
// out. Implementations may block on the network and must honor ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Tool represents an executable action that can be named in a plan.
type Tool interface {
	// Execute performs the tool's action on the resolved input string.
	Execute(ctx context.Context, input string) (string, error)

	// Description returns a one-line description used in planner prompts.
	Description() string

	// Validate checks the input before execution. Returns nil if valid.
	Validate(input string) error

	// Name returns the tool's name.
	Name() string
}

// ToolRunner dispatches a named tool invocation. Unknown names yield a typed
// TOOL_NOT_FOUND error, never an error-shaped result string.
type ToolRunner interface {
	Execute(ctx context.Context, name, input string) (string, error)
	Descriptions() string
	Names() []string
}

// Cache provides storage for frequently accessed data, like generated plans.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}
