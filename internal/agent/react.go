// Package agent implements the sequential agent loops: ReAct and ReWOO.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
)

const reactPromptTemplate = `You are an assistant that can call external tools.

Available tools:
%s

Respond strictly in this format:
Thought: analyze the situation and plan the next step.
Action: one of:
  - ToolName[input]
  - Finish[final answer]

Question: %s
History:
%s`

var (
	thoughtPattern  = regexp.MustCompile(`Thought:\s*(.*)`)
	actionPattern   = regexp.MustCompile(`Action:\s*(.*)`)
	finishPattern   = regexp.MustCompile(`(?s)^Finish\[(.*)\]`)
	toolCallPattern = regexp.MustCompile(`(?s)^(\w+)\[(.*)\]`)
)

// HistoryEntry is one completed reasoning step.
type HistoryEntry struct {
	Thought     string
	Action      string
	Observation string
}

// ReActAgent runs the observe-think-act loop: each step the model emits a
// Thought and an Action, the action runs, and the observation feeds the next
// step. The loop is strictly sequential; one call is outstanding at a time.
type ReActAgent struct {
	generator skein.Generator
	tools     skein.ToolRunner
	maxSteps  int
}

// ReActOption configures the ReActAgent.
type ReActOption func(*ReActAgent)

// WithMaxSteps bounds the reasoning loop.
func WithMaxSteps(steps int) ReActOption {
	return func(a *ReActAgent) {
		a.maxSteps = steps
	}
}

// NewReActAgent creates a ReAct agent with a default budget of 5 steps.
func NewReActAgent(generator skein.Generator, tools skein.ToolRunner, options ...ReActOption) *ReActAgent {
	a := &ReActAgent{
		generator: generator,
		tools:     tools,
		maxSteps:  5,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Run answers the question, or returns ErrNoAnswer when the step budget runs
// out without a Finish action. Tool failures are recorded as "error: ..."
// observations so the model can correct course; they do not abort the loop.
func (a *ReActAgent) Run(ctx context.Context, question string) (string, error) {
	var history []HistoryEntry

	for step := 1; step <= a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", skein.NewCancelledError("agent", err)
		}

		prompt := fmt.Sprintf(reactPromptTemplate, a.tools.Descriptions(), question, formatHistory(history))
		response, err := a.generator.Generate(ctx, prompt)
		if err != nil {
			return "", skein.NewError(skein.ErrCodeTaskExecution, "agent", "model call failed", err)
		}

		thought, action := parseThoughtAction(response)
		if action == "" {
			log.Warn().Int("step", step).Msg("no action in model response")
			return "", skein.ErrNoAnswer
		}
		log.Debug().Int("step", step).Str("thought", thought).Str("action", action).Msg("react step")

		if m := finishPattern.FindStringSubmatch(action); m != nil {
			return strings.TrimSpace(m[1]), nil
		}

		observation := a.act(ctx, action)
		history = append(history, HistoryEntry{
			Thought:     thought,
			Action:      action,
			Observation: observation,
		})
	}

	log.Warn().Int("max_steps", a.maxSteps).Msg("step budget exhausted")
	return "", skein.ErrNoAnswer
}

// act executes one action and renders the observation. Errors come back as
// typed errors from the registry and are folded into the observation text.
func (a *ReActAgent) act(ctx context.Context, action string) string {
	m := toolCallPattern.FindStringSubmatch(action)
	if m == nil {
		return fmt.Sprintf("error: invalid action format: %s", action)
	}
	toolName, toolInput := m[1], m[2]

	var result string
	var err error
	if toolName == skein.ToolNameLLM {
		result, err = a.generator.Generate(ctx, toolInput)
	} else {
		result, err = a.tools.Execute(ctx, toolName, toolInput)
	}
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return result
}

func parseThoughtAction(response string) (thought, action string) {
	if m := thoughtPattern.FindStringSubmatch(response); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if m := actionPattern.FindStringSubmatch(response); m != nil {
		action = strings.TrimSpace(m[1])
	}
	return thought, action
}

func formatHistory(history []HistoryEntry) string {
	if len(history) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for _, entry := range history {
		fmt.Fprintf(&sb, "Thought: %s\nAction: %s\nObservation: %s\n", entry.Thought, entry.Action, entry.Observation)
	}
	return strings.TrimRight(sb.String(), "\n")
}
