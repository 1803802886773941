// Package executor schedules and runs execution plans: the task-fetching
// loop, placeholder resolution, and dispatch to tools or the language model.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/skeinworks/skein"
	"github.com/skeinworks/skein/internal/eventbus"
)

// DAGExecutor drives an execution plan to completion in ready batches: every
// iteration collects all tasks whose dependencies have results and dispatches
// them concurrently. Tasks in one batch run with no ordering guarantee among
// each other; a task never starts before its dependencies have results.
type DAGExecutor struct {
	generator skein.Generator
	tools     skein.ToolRunner
	eventBus  eventbus.EventBus

	maxWorkers    int
	maxRetries    int
	retryDelay    time.Duration
	taskTimeout   time.Duration
	maxIterations int

	metrics ExecutorMetrics
}

// ExecutorOption configures the DAGExecutor.
type ExecutorOption func(*DAGExecutor)

// WithMaxWorkers sets the maximum number of concurrently running tasks.
func WithMaxWorkers(workers int) ExecutorOption {
	return func(e *DAGExecutor) {
		e.maxWorkers = workers
	}
}

// WithMaxRetries sets the maximum number of retries for failed tasks.
// Zero (the default) means fail-fast: the first task error aborts the run.
func WithMaxRetries(retries int) ExecutorOption {
	return func(e *DAGExecutor) {
		e.maxRetries = retries
	}
}

// WithRetryDelay sets the delay between task retries.
func WithRetryDelay(delay time.Duration) ExecutorOption {
	return func(e *DAGExecutor) {
		e.retryDelay = delay
	}
}

// WithTaskTimeout sets the per-task execution timeout.
func WithTaskTimeout(timeout time.Duration) ExecutorOption {
	return func(e *DAGExecutor) {
		e.taskTimeout = timeout
	}
}

// WithMaxIterations caps scheduler loop iterations.
func WithMaxIterations(iterations int) ExecutorOption {
	return func(e *DAGExecutor) {
		e.maxIterations = iterations
	}
}

// WithEventBus attaches an event bus for task lifecycle events.
func WithEventBus(bus eventbus.EventBus) ExecutorOption {
	return func(e *DAGExecutor) {
		e.eventBus = bus
	}
}

// NewDAGExecutor creates an executor that dispatches LLM tasks to generator
// and everything else to tools.
func NewDAGExecutor(generator skein.Generator, tools skein.ToolRunner, options ...ExecutorOption) *DAGExecutor {
	e := &DAGExecutor{
		generator:     generator,
		tools:         tools,
		maxWorkers:    5,
		maxRetries:    0,
		retryDelay:    time.Second * 2,
		taskTimeout:   time.Minute * 5,
		maxIterations: 100,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// ExecutePlan runs the plan until every task completes, a task fails, or the
// scheduler detects it cannot make progress. On failure the remaining pending
// tasks are marked cancelled and the partial results are returned alongside
// the error for diagnostics.
func (e *DAGExecutor) ExecutePlan(ctx context.Context, plan *skein.ExecutionPlan) (map[string]string, error) {
	startTime := time.Now()
	e.resetMetrics()
	e.publish(ctx, eventbus.EventDAGExecutionStarted, map[string]interface{}{
		"total_tasks": plan.TaskCount(),
	})

	log.Debug().Int("total_tasks", plan.TaskCount()).Msg("starting plan execution")

	iteration := 0
	for !plan.IsComplete() {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, plan, skein.NewCancelledError("execution", err))
		}

		iteration++
		if iteration > e.maxIterations {
			return e.abort(ctx, plan, skein.NewDeadlockError(fmt.Sprintf(
				"scheduler exceeded %d iterations without completing the plan", e.maxIterations)))
		}

		ready := plan.ReadyTasks()
		if len(ready) == 0 {
			return e.abort(ctx, plan, skein.NewDeadlockError(
				"no ready tasks but the plan is incomplete (cyclic or failed dependency)"))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxWorkers)
		for _, task := range ready {
			task := task
			g.Go(func() error {
				return e.executeTask(gctx, task, plan)
			})
		}
		if err := g.Wait(); err != nil {
			return e.abort(ctx, plan, err)
		}
	}

	duration := time.Since(startTime)
	e.publish(ctx, eventbus.EventDAGExecutionSuccess, map[string]interface{}{
		"total_tasks": plan.TaskCount(),
		"duration":    duration.String(),
	})
	log.Debug().
		Int("total_tasks", plan.TaskCount()).
		Int("iterations", iteration).
		Dur("duration", duration).
		Msg("plan execution complete")

	return plan.Results(), nil
}

// abort marks every unfinished task cancelled and reports the failure.
// Partial results stay available on the returned map.
func (e *DAGExecutor) abort(ctx context.Context, plan *skein.ExecutionPlan, cause error) (map[string]string, error) {
	plan.StateMutex.Lock()
	for _, task := range plan.TaskMap {
		status := task.GetStatus()
		if status == skein.TaskStatusPending || status == skein.TaskStatusRunning {
			task.UpdateStatus(skein.TaskStatusCancelled, cause)
		}
	}
	plan.StateMutex.Unlock()

	e.publish(ctx, eventbus.EventDAGExecutionFailure, map[string]interface{}{
		"error": cause.Error(),
	})
	log.Error().Err(cause).Msg("plan execution failed")

	return plan.Results(), cause
}

// executeTask resolves one task's arguments, dispatches it, and records the
// result. The task's result is written exactly once.
func (e *DAGExecutor) executeTask(ctx context.Context, task *skein.Task, plan *skein.ExecutionPlan) error {
	task.UpdateStatus(skein.TaskStatusRunning, nil)
	e.publish(ctx, eventbus.EventTaskExecutionStarted, map[string]interface{}{
		"task_id": task.ID,
		"tool":    task.ToolName,
	})

	resolved, err := ResolveArguments(task.Arguments, plan)
	if err != nil {
		resErr := skein.NewArgResolutionError(task.ID, err)
		task.UpdateStatus(skein.TaskStatusFailed, resErr)
		e.publishTaskFailure(ctx, task, resErr)
		return resErr
	}

	result, execErr := e.dispatchWithRetry(ctx, task, resolved)
	if execErr != nil {
		var taskErr error
		switch {
		case errors.Is(execErr, context.DeadlineExceeded):
			taskErr = skein.NewTaskExecutionError(task.ID, skein.NewTimeoutError("execution", execErr))
		case skein.IsCode(execErr, skein.ErrCodeToolNotFound):
			taskErr = execErr
		default:
			taskErr = skein.NewTaskExecutionError(task.ID, execErr)
		}
		task.UpdateStatus(skein.TaskStatusFailed, taskErr)
		e.publishTaskFailure(ctx, task, taskErr)
		return taskErr
	}

	if err := task.SetResult(result); err != nil {
		intErr := skein.NewInternalError("execution", "task result already recorded", err)
		task.UpdateStatus(skein.TaskStatusFailed, intErr)
		e.publishTaskFailure(ctx, task, intErr)
		return intErr
	}
	e.updateTaskMetrics(task)

	e.publish(ctx, eventbus.EventTaskExecutionSuccess, map[string]interface{}{
		"task_id":  task.ID,
		"tool":     task.ToolName,
		"duration": task.Duration().String(),
	})
	log.Debug().
		Str("task_id", task.ID).
		Str("tool", task.ToolName).
		Dur("duration", task.Duration()).
		Msg("task completed")

	return nil
}

// dispatchWithRetry runs the task's call under the per-task timeout,
// retrying up to maxRetries times. The default of zero retries preserves
// strict fail-fast behavior.
func (e *DAGExecutor) dispatchWithRetry(ctx context.Context, task *skein.Task, resolvedArgs string) (string, error) {
	var result string
	var err error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.taskTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		}

		if task.ToolName == skein.ToolNameLLM {
			result, err = e.generator.Generate(callCtx, resolvedArgs)
		} else {
			result, err = e.tools.Execute(callCtx, task.ToolName, resolvedArgs)
		}
		cancel()

		if err == nil {
			return result, nil
		}
		if skein.IsCode(err, skein.ErrCodeToolNotFound) {
			// No registry change can happen mid-run; retrying is pointless.
			return "", err
		}
		if attempt == e.maxRetries {
			break
		}

		e.addRetry()
		e.publish(ctx, eventbus.EventTaskExecutionRetry, map[string]interface{}{
			"task_id": task.ID,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		log.Warn().
			Str("task_id", task.ID).
			Int("attempt", attempt+1).
			Int("max_retries", e.maxRetries).
			Err(err).
			Msg("task failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}

	return "", err
}

func (e *DAGExecutor) publishTaskFailure(ctx context.Context, task *skein.Task, err error) {
	e.updateTaskMetrics(task)
	e.publish(ctx, eventbus.EventTaskExecutionFailure, map[string]interface{}{
		"task_id": task.ID,
		"tool":    task.ToolName,
		"error":   err.Error(),
	})
	log.Error().
		Str("task_id", task.ID).
		Str("tool", task.ToolName).
		Err(err).
		Msg("task failed")
}

func (e *DAGExecutor) publish(ctx context.Context, eventType eventbus.EventType, payload map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.Publish(ctx, eventbus.NewEvent(eventType, payload, "executor", nil)); err != nil {
		log.Warn().Str("event_type", string(eventType)).Err(err).Msg("failed to publish event")
	}
}
