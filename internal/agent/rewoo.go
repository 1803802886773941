package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
	"github.com/skeinworks/skein/internal/planner"
)

const rewooPlannerPromptTemplate = `Devise a step-by-step plan for the task below. For each step, name the external tool to call and its input, storing the result in an evidence variable #E<n> that later steps may reference (format: Plan, #E1, Plan, #E2, ...).

Available tools:
%s

Example:
Task: A tank is 2m long, 1.5m wide, and 1m high. Filling at 0.3 cubic meters per minute, how long until full?
Plan: Compute the tank's total volume in cubic meters.
#E1 = LLM[compute 2 * 1.5 * 1]
Plan: Divide the volume by the fill rate to get the time in minutes.
#E2 = LLM[compute #E1 / 0.3]

Begin. Emit exactly one #E variable after each Plan line.

Task: %s`

const rewooSolverPromptTemplate = `Given the task, the step-by-step plan, and each step's recorded evidence, produce the final answer.

%s

Answer the task using only the evidence above. Output the final answer only, with no explanation or preamble.

Task: %s
Answer:`

var evidencePattern = regexp.MustCompile(`#E\d+`)

// ReWOOAgent plans once up front, executes every step strictly in
// planner-emitted order against an evidence map, then runs a single solver
// pass. No replanning and no dependency graph; execution is linear.
type ReWOOAgent struct {
	generator skein.Generator
	tools     skein.ToolRunner
}

// NewReWOOAgent creates a ReWOO agent.
func NewReWOOAgent(generator skein.Generator, tools skein.ToolRunner) *ReWOOAgent {
	return &ReWOOAgent{generator: generator, tools: tools}
}

// Run plans, works, and solves the task.
func (a *ReWOOAgent) Run(ctx context.Context, task string) (string, error) {
	steps, err := a.plan(ctx, task)
	if err != nil {
		return "", err
	}

	evidence, err := a.work(ctx, steps)
	if err != nil {
		return "", err
	}

	return a.solve(ctx, task, steps, evidence)
}

func (a *ReWOOAgent) plan(ctx context.Context, task string) ([]planner.Step, error) {
	prompt := fmt.Sprintf(rewooPlannerPromptTemplate, a.tools.Descriptions(), task)
	response, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, skein.NewPlanGenerationError(err)
	}

	steps, err := planner.ParsePlan(response)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("steps", len(steps)).Msg("rewoo plan generated")
	return steps, nil
}

// work executes the steps in order, filling the evidence map. The first
// failure aborts the run; evidence collected so far is discarded with it.
func (a *ReWOOAgent) work(ctx context.Context, steps []planner.Step) (map[string]string, error) {
	evidence := make(map[string]string, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, skein.NewCancelledError("agent", err)
		}

		resolved := substituteEvidence(step.Arguments, evidence)

		var result string
		var err error
		if step.ToolName == skein.ToolNameLLM {
			result, err = a.generator.Generate(ctx, resolved)
		} else {
			result, err = a.tools.Execute(ctx, step.ToolName, resolved)
		}
		if err != nil {
			return nil, skein.NewTaskExecutionError(step.ID, err)
		}

		evidence["#"+step.ID] = strings.TrimSpace(result)
		log.Debug().Str("evidence", "#"+step.ID).Str("tool", step.ToolName).Msg("rewoo step complete")
	}

	return evidence, nil
}

func (a *ReWOOAgent) solve(ctx context.Context, task string, steps []planner.Step, evidence map[string]string) (string, error) {
	var sb strings.Builder
	for _, step := range steps {
		resolved := substituteEvidence(step.Arguments, evidence)
		fmt.Fprintf(&sb, "Plan: %s\n", step.Description)
		fmt.Fprintf(&sb, "#%s = %s[%s] -> %s\n", step.ID, step.ToolName, resolved, evidence["#"+step.ID])
	}

	prompt := fmt.Sprintf(rewooSolverPromptTemplate, strings.TrimRight(sb.String(), "\n"), task)
	answer, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return "", skein.NewSynthesisError(err)
	}
	return strings.TrimSpace(answer), nil
}

// substituteEvidence replaces #E<n> references with recorded evidence,
// leaving unknown references untouched.
func substituteEvidence(text string, evidence map[string]string) string {
	return evidencePattern.ReplaceAllStringFunc(text, func(ref string) string {
		if value, ok := evidence[ref]; ok {
			return value
		}
		return ref
	})
}
