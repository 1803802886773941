package planner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
)

const plannerPromptTemplate = `Devise an execution plan for the task below, expressed as a directed acyclic graph (DAG). Each node is one tool call; edges are data dependencies.

Available tools:
%s

Output format (JSON):
{
  "tasks": [
    {"task_id": "T1", "tool_name": "tool_name", "arguments": "input", "dependencies": []},
    {"task_id": "T2", "tool_name": "tool_name", "arguments": "input using #T1", "dependencies": ["T1"]}
  ]
}

Rules:
1. task_id values must be unique: T1, T2, T3, ...
2. dependencies lists the IDs of tasks whose results this task needs.
3. arguments may embed a prior task's result with #T1, #T2, etc.
4. Use "LLM" as tool_name when a step needs model reasoning rather than a tool.
5. The graph must be acyclic.
6. For tools taking multiple parameters, pass a JSON object: {"param1": "value1", "param2": "value2"}.

Task: %s

Respond with the JSON object only.`

// LLMPlanner generates execution plans by prompting a language model and
// parsing its response. Parsed plans are cached by query and tool schema so
// repeated queries skip the model call.
type LLMPlanner struct {
	generator skein.Generator
	cache     skein.Cache
}

// Option configures the LLMPlanner.
type Option func(*LLMPlanner)

// WithCache enables plan caching.
func WithCache(cache skein.Cache) Option {
	return func(p *LLMPlanner) {
		p.cache = cache
	}
}

// NewLLMPlanner creates a planner backed by the given generator.
func NewLLMPlanner(generator skein.Generator, options ...Option) *LLMPlanner {
	p := &LLMPlanner{generator: generator}
	for _, option := range options {
		option(p)
	}
	return p
}

// GeneratePlan produces a validated execution plan for the input query.
// Cached plans are stored in parsed-step form, never with results, so every
// hit yields a fresh plan with clean execution state.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, input skein.PlannerInput) (*skein.ExecutionPlan, error) {
	key := cacheKey(input)

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, key); err == nil {
			if steps, ok := cached.([]Step); ok {
				log.Debug().Str("key", key).Msg("plan cache hit")
				return BuildPlan(steps)
			}
		}
	}

	prompt := fmt.Sprintf(plannerPromptTemplate, formatToolSchema(input.ToolSchema), input.Query)

	response, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, skein.NewPlanGenerationError(err)
	}

	steps, err := ParsePlan(response)
	if err != nil {
		return nil, err
	}

	plan, err := BuildPlan(steps)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, steps); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("failed to cache plan")
		}
	}

	log.Debug().Int("tasks", plan.TaskCount()).Msg("plan generated")
	return plan, nil
}

// cacheKey derives a stable key from the query and the tool schema.
func cacheKey(input skein.PlannerInput) string {
	h := sha1.New()
	h.Write([]byte(input.Query))
	names := make([]string, 0, len(input.ToolSchema))
	for name := range input.ToolSchema {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(input.ToolSchema[name]))
	}
	return "plan:" + hex.EncodeToString(h.Sum(nil))
}

// formatToolSchema renders tool descriptions sorted by name so the prompt is
// deterministic for a given registry.
func formatToolSchema(schema map[string]string) string {
	if len(schema) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, schema[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}
