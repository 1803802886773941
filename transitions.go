package skein

import (
	"context"
	"time"

	"github.com/skeinworks/skein/internal/eventbus"
)

// Components holds the pipeline components a state machine run needs.
type Components struct {
	Planner  Planner
	Executor Executor
	Solver   Solver
	Tools    map[string]Tool
	Config   Config

	// GetSchemas supplies tool descriptions for the planner prompt.
	GetSchemas func() map[string]string
}

// CreateProcessStateMachine builds the state machine for the orchestration
// workflow: init -> planning -> execution -> synthesis -> complete.
func CreateProcessStateMachine(components Components, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(components))
	sm.RegisterTransition(StateExecution, createExecutionTransition(components))
	sm.RegisterTransition(StateSynthesis, createSynthesisTransition(components))
	sm.RegisterTransition(StateError, createErrorTransition(components))
	sm.RegisterTransition(StateComplete, createCompleteTransition(components))
	sm.RegisterTransition(StateCancelled, createCancelledTransition(components))

	return sm
}

func publish(ctx context.Context, eb eventbus.EventBus, eventType eventbus.EventType, payload interface{}, source string, metadata map[string]interface{}) {
	if eb == nil {
		return
	}
	eb.Publish(ctx, eventbus.NewEvent(eventType, payload, source, metadata))
}

// createInitTransition prepares planner input from the registered tools.
func createInitTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventQueryProcessingStarted, pCtx.Query, "StateMachine.Init",
			map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)})

		pCtx.StateData["planner_input"] = PlannerInput{
			Query:      pCtx.Query,
			ToolSchema: components.GetSchemas(),
		}

		return StatePlanning, nil
	}
}

// createPlanningTransition asks the planner for an execution plan.
func createPlanningTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		input, ok := pCtx.StateData["planner_input"].(PlannerInput)
		if !ok {
			return StateError, NewInternalError("planning", "planner input missing from process context", nil)
		}

		publish(ctx, eb, eventbus.EventPlanGenerationStarted, input.Query, "StateMachine.Planning", nil)

		plan, err := components.Planner.GeneratePlan(ctx, input)
		if err != nil {
			publish(ctx, eb, eventbus.EventPlanGenerationFailure, err.Error(), "StateMachine.Planning",
				map[string]interface{}{"error": err.Error()})
			return StateError, NewPlanGenerationError(err)
		}

		publish(ctx, eb, eventbus.EventPlanGenerationSuccess, plan, "StateMachine.Planning",
			map[string]interface{}{"task_count": plan.TaskCount()})

		pCtx.Plan = plan
		return StateExecution, nil
	}
}

// createExecutionTransition runs the plan through the DAG executor.
func createExecutionTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventDAGExecutionStarted, pCtx.Plan, "StateMachine.Execution",
			map[string]interface{}{"task_count": pCtx.Plan.TaskCount()})

		results, err := components.Executor.ExecutePlan(ctx, pCtx.Plan)
		if err != nil {
			publish(ctx, eb, eventbus.EventDAGExecutionFailure, err.Error(), "StateMachine.Execution",
				map[string]interface{}{"error": err.Error()})
			return StateError, err
		}

		publish(ctx, eb, eventbus.EventDAGExecutionSuccess, results, "StateMachine.Execution",
			map[string]interface{}{"result_count": len(results)})

		pCtx.ExecutionResults = results
		return StateSynthesis, nil
	}
}

// createSynthesisTransition joins all task results into a final answer.
func createSynthesisTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventSynthesisStarted, pCtx.Query, "StateMachine.Synthesis",
			map[string]interface{}{"execution_result_count": len(pCtx.ExecutionResults)})

		finalAnswer, err := components.Solver.Synthesize(ctx, pCtx.Query, pCtx.Plan)
		if err != nil {
			publish(ctx, eb, eventbus.EventSynthesisFailure, err.Error(), "StateMachine.Synthesis",
				map[string]interface{}{"error": err.Error()})
			return StateError, NewSynthesisError(err)
		}

		publish(ctx, eb, eventbus.EventSynthesisSuccess, finalAnswer, "StateMachine.Synthesis",
			map[string]interface{}{"answer_length": len(finalAnswer)})
		publish(ctx, eb, eventbus.EventQueryProcessingSuccess, pCtx.Query, "StateMachine.Synthesis",
			map[string]interface{}{"duration_ms": pCtx.GetTotalDuration().Milliseconds()})

		pCtx.FinalAnswer = finalAnswer
		pCtx.Complete()
		return StateComplete, nil
	}
}

// createErrorTransition terminates the run with the recorded error intact.
func createErrorTransition(_ Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventQueryProcessingFailure, pCtx.Query, "StateMachine.Error",
			map[string]interface{}{"stage": pCtx.ErrorStage})
		return StateComplete, pCtx.LastError
	}
}

// createCompleteTransition handles the terminal complete state.
func createCompleteTransition(_ Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateComplete, nil
	}
}

// createCancelledTransition handles the terminal cancelled state.
func createCancelledTransition(_ Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateCancelled, pCtx.LastError
	}
}
