package skein

import "fmt"

// Error codes for specific failure types.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodePlanParse      = "PLAN_PARSE_ERROR"
	ErrCodePlanGeneration = "PLAN_GENERATION_ERROR"
	ErrCodeDeadlock       = "SCHEDULING_DEADLOCK"
	ErrCodeTaskExecution  = "TASK_EXECUTION_ERROR"
	ErrCodeToolNotFound   = "TOOL_NOT_FOUND"
	ErrCodeArgResolution  = "ARGUMENT_RESOLUTION_ERROR"
	ErrCodeSynthesis      = "SYNTHESIS_ERROR"
	ErrCodeConfiguration  = "CONFIGURATION_ERROR"
	ErrCodeCancelled      = "EXECUTION_CANCELLED"
	ErrCodeTimeout        = "EXECUTION_TIMEOUT"
	ErrCodeCache          = "CACHE_ERROR"
	ErrCodeNoAnswer       = "NO_ANSWER"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Error is the error type shared by all skein components. Code is machine
// readable; Stage names the pipeline phase that produced the error.
type Error struct {
	Code    string
	Stage   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause, allowing errors.Is/As chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, stage, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err is (or wraps) a skein Error with the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Specific error constructors.

func NewValidationError(stage, message string, cause error) *Error {
	return NewError(ErrCodeValidation, stage, message, cause)
}

// NewPlanParseError signals that a planner response contained no parseable
// plan. Never retried automatically; the caller decides.
func NewPlanParseError(message string, cause error) *Error {
	return NewError(ErrCodePlanParse, "planning", message, cause)
}

func NewPlanGenerationError(cause error) *Error {
	return NewError(ErrCodePlanGeneration, "planning", "failed to generate execution plan", cause)
}

// NewDeadlockError signals that no task is ready yet the plan is incomplete,
// which implies a cyclic or permanently failed dependency.
func NewDeadlockError(message string) *Error {
	return NewError(ErrCodeDeadlock, "execution", message, nil)
}

func NewTaskExecutionError(taskID string, cause error) *Error {
	return NewError(ErrCodeTaskExecution, "execution", fmt.Sprintf("task %s failed", taskID), cause)
}

func NewToolNotFoundError(stage, toolName string) *Error {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool %q not found", toolName), nil)
}

func NewArgResolutionError(taskID string, cause error) *Error {
	return NewError(ErrCodeArgResolution, "execution",
		fmt.Sprintf("failed to resolve arguments for task %s", taskID), cause)
}

func NewSynthesisError(cause error) *Error {
	return NewError(ErrCodeSynthesis, "synthesis", "failed to synthesize final answer", cause)
}

func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *Error {
	return NewError(ErrCodeCancelled, stage, "execution cancelled", cause)
}

func NewTimeoutError(stage string, cause error) *Error {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewCacheError(stage, operation string, cause error) *Error {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation %q failed", operation), cause)
}

// ErrNoAnswer is returned by the bounded agent loops when the step budget is
// exhausted without a final answer. Callers must branch on it explicitly
// rather than treating an empty string as "no answer".
var ErrNoAnswer = NewError(ErrCodeNoAnswer, "agent", "no answer produced within the step budget", nil)

func NewInternalError(stage, message string, cause error) *Error {
	return NewError(ErrCodeInternal, stage, message, cause)
}
