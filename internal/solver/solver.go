// Package solver synthesizes a final answer from a completed execution plan.
package solver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
	"github.com/skeinworks/skein/internal/executor"
)

const solverPromptTemplate = `Given the task below and the recorded execution steps, produce the final answer.

Task: %s

Execution steps:
%s

Answer the task using only the results above. Output the final answer only, with no explanation or preamble.`

// LLMSolver builds an execution summary and asks the language model for the
// final user-facing answer.
type LLMSolver struct {
	generator skein.Generator
}

// NewLLMSolver creates a solver backed by the given generator.
func NewLLMSolver(generator skein.Generator) *LLMSolver {
	return &LLMSolver{generator: generator}
}

// Synthesize linearizes the plan's steps into a summary, embeds it in the
// solver prompt, and returns the model's answer.
func (s *LLMSolver) Synthesize(ctx context.Context, query string, plan *skein.ExecutionPlan) (string, error) {
	summary := BuildExecutionSummary(plan)
	prompt := fmt.Sprintf(solverPromptTemplate, query, summary)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", skein.NewSynthesisError(err)
	}

	answer = strings.TrimSpace(answer)
	log.Debug().Int("summary_len", len(summary)).Int("answer_len", len(answer)).Msg("answer synthesized")
	return answer, nil
}

// BuildExecutionSummary renders every task's description, tool, resolved
// arguments, and result in ascending task-id order. The ordering is
// numeric-aware (T2 before T10) so summaries are stable for a given plan.
func BuildExecutionSummary(plan *skein.ExecutionPlan) string {
	ids := plan.TaskIDs()
	sort.Slice(ids, func(i, j int) bool {
		return taskIDLess(ids[i], ids[j])
	})

	var sb strings.Builder
	for _, id := range ids {
		task, ok := plan.GetTask(id)
		if !ok {
			continue
		}

		resolvedArgs, err := executor.ResolveArguments(task.Arguments, plan)
		if err != nil {
			resolvedArgs = task.Arguments
		}
		result, done := task.Result()
		if !done {
			result = "(no result)"
		}
		deps := "(none)"
		if len(task.DependsOn) > 0 {
			deps = strings.Join(task.DependsOn, ", ")
		}

		if task.Description != "" {
			fmt.Fprintf(&sb, "%s: %s\n", id, task.Description)
			fmt.Fprintf(&sb, "  call: %s[%s]\n", task.ToolName, resolvedArgs)
		} else {
			fmt.Fprintf(&sb, "%s: %s[%s]\n", id, task.ToolName, resolvedArgs)
		}
		fmt.Fprintf(&sb, "  depends on: %s\n", deps)
		fmt.Fprintf(&sb, "  result: %s\n\n", result)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// taskIDLess orders IDs by alphabetic prefix, then numeric suffix, so T2
// sorts before T10.
func taskIDLess(a, b string) bool {
	aPrefix, aNum, aHasNum := splitID(a)
	bPrefix, bNum, bHasNum := splitID(b)
	if aPrefix != bPrefix {
		return aPrefix < bPrefix
	}
	if aHasNum && bHasNum {
		return aNum < bNum
	}
	return a < b
}

func splitID(id string) (prefix string, num int, ok bool) {
	i := 0
	for i < len(id) && (id[i] < '0' || id[i] > '9') {
		i++
	}
	prefix = id[:i]
	if i == len(id) {
		return prefix, 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return prefix, 0, false
	}
	return prefix, n, true
}
