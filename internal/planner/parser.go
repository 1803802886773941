// Package planner turns planner-model output and plan files into validated
// execution plans.
package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein"
)

// Step is one parsed plan step, before graph construction. Steps are plain
// data so cached plans carry no execution state.
type Step struct {
	ID          string   `json:"task_id"`
	Description string   `json:"description,omitempty"`
	ToolName    string   `json:"tool_name"`
	Arguments   string   `json:"arguments"`
	DependsOn   []string `json:"dependencies"`
}

var (
	// First (outermost) JSON object in a completion. Models wrap plans in
	// prose or code fences; the greedy span covers nested objects.
	jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

	// One plan line: `Plan: <desc>` followed by `#E<n> = Tool[args]`.
	// Parentheses are accepted in place of brackets.
	planLinePattern = regexp.MustCompile(`(?s)Plan:\s*(.+?)\s*(#E\d+)\s*=\s*(\w+)\s*[\[\(]([^\]\)]*)[\]\)]`)

	evidenceRefPattern = regexp.MustCompile(`#E\d+`)
)

// ParsePlan extracts plan steps from a free-form completion. It tries the
// JSON grammar first and falls back to the Plan:/#E line grammar. Duplicate
// step IDs resolve last-write-wins. A completion with no recognizable plan
// yields a PLAN_PARSE_ERROR and no steps.
func ParsePlan(text string) ([]Step, error) {
	if steps := parseJSONPlan(text); len(steps) > 0 {
		return dedupe(steps), nil
	}
	if steps := parseLinePlan(text); len(steps) > 0 {
		return dedupe(steps), nil
	}
	return nil, skein.NewPlanParseError("no valid plan found in response", nil)
}

type planDocument struct {
	Tasks []Step `json:"tasks"`
}

func parseJSONPlan(text string) []Step {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil
	}

	var doc planDocument
	if err := json.Unmarshal([]byte(match), &doc); err != nil {
		return nil
	}
	return doc.Tasks
}

// parseLinePlan parses the Plan:/#E grammar. The evidence variable becomes
// the step ID (#E1 -> E1); dependencies are inferred from #E references in
// the argument string that name another step in the same plan.
func parseLinePlan(text string) []Step {
	matches := planLinePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	declared := make(map[string]bool, len(matches))
	for _, m := range matches {
		declared[strings.TrimPrefix(m[2], "#")] = true
	}

	steps := make([]Step, 0, len(matches))
	for _, m := range matches {
		step := Step{
			ID:          strings.TrimPrefix(m[2], "#"),
			Description: strings.TrimSpace(m[1]),
			ToolName:    m[3],
			Arguments:   trimQuotes(strings.TrimSpace(m[4])),
		}
		for _, ref := range evidenceRefPattern.FindAllString(step.Arguments, -1) {
			depID := strings.TrimPrefix(ref, "#")
			if depID != step.ID && declared[depID] && !contains(step.DependsOn, depID) {
				step.DependsOn = append(step.DependsOn, depID)
			}
		}
		steps = append(steps, step)
	}
	return steps
}

// dedupe resolves duplicate step IDs last-write-wins: the later step's
// content replaces the earlier one's, at the earlier position.
func dedupe(steps []Step) []Step {
	seen := make(map[string]int, len(steps))
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		if idx, exists := seen[step.ID]; exists {
			log.Warn().Str("task_id", step.ID).Msg("duplicate task ID in plan, keeping last")
			out[idx] = step
			continue
		}
		seen[step.ID] = len(out)
		out = append(out, step)
	}
	return out
}

// BuildPlan converts parsed steps into a validated execution plan.
func BuildPlan(steps []Step) (*skein.ExecutionPlan, error) {
	tasks := make([]skein.Task, len(steps))
	for i, step := range steps {
		tasks[i] = skein.Task{
			ID:          step.ID,
			Description: step.Description,
			ToolName:    step.ToolName,
			Arguments:   step.Arguments,
			DependsOn:   append([]string(nil), step.DependsOn...),
		}
	}
	return skein.NewExecutionPlan(tasks)
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
