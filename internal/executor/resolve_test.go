package executor

import (
	"encoding/json"
	"testing"

	"github.com/skeinworks/skein"
)

// planWithResults builds a plan and records results for the given tasks.
func planWithResults(t *testing.T, results map[string]string) *skein.ExecutionPlan {
	t.Helper()
	tasks := make([]skein.Task, 0, len(results))
	for id := range results {
		tasks = append(tasks, skein.Task{ID: id, ToolName: "echo", Arguments: "x"})
	}
	plan, err := skein.NewExecutionPlan(tasks)
	if err != nil {
		t.Fatalf("NewExecutionPlan failed: %v", err)
	}
	for id, result := range results {
		task, _ := plan.GetTask(id)
		if err := task.SetResult(result); err != nil {
			t.Fatalf("SetResult failed: %v", err)
		}
	}
	return plan
}

func TestResolveArgumentsIdempotentWithoutPlaceholders(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": "6"})

	for _, input := range []string{
		"plain text",
		"2 * 3 / 4",
		"number sign # alone",
		"#X9 is not a placeholder",
		"",
	} {
		resolved, err := ResolveArguments(input, plan)
		if err != nil {
			t.Fatalf("ResolveArguments(%q) failed: %v", input, err)
		}
		if resolved != input {
			t.Errorf("ResolveArguments(%q) = %q, want unchanged", input, resolved)
		}
	}
}

func TestResolveArgumentsTextual(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": "6", "T2": "42"})

	resolved, err := ResolveArguments("#T1 / 2 plus #T2", plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}
	if resolved != "6 / 2 plus 42" {
		t.Errorf("got %q", resolved)
	}
}

func TestResolveArgumentsEvidenceRefs(t *testing.T) {
	plan := planWithResults(t, map[string]string{"E1": "3"})

	resolved, err := ResolveArguments("compute #E1 / 0.3", plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}
	if resolved != "compute 3 / 0.3" {
		t.Errorf("got %q", resolved)
	}
}

func TestResolveArgumentsUnresolvedRefLeftIntact(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": "6"})

	resolved, err := ResolveArguments("#T1 and #T9", plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}
	if resolved != "6 and #T9" {
		t.Errorf("got %q", resolved)
	}
}

func TestResolveArgumentsJSONStructural(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": `He said "six"`})

	resolved, err := ResolveArguments(`{"value": "#T1", "unit": "items"}`, plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(resolved), &parsed); err != nil {
		t.Fatalf("resolved payload is not valid JSON: %v\n%s", err, resolved)
	}
	if parsed["value"] != `He said "six"` {
		t.Errorf("value = %q", parsed["value"])
	}
	if parsed["unit"] != "items" {
		t.Errorf("unit = %q", parsed["unit"])
	}
}

func TestResolveArgumentsSingleQuotedJSON(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": "6"})

	resolved, err := ResolveArguments(`{'value': '#T1'}`, plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(resolved), &parsed); err != nil {
		t.Fatalf("normalized payload is not valid JSON: %v\n%s", err, resolved)
	}
	if parsed["value"] != "6" {
		t.Errorf("value = %q", parsed["value"])
	}
}

func TestResolveArgumentsMalformedJSONFallsBackToTextual(t *testing.T) {
	plan := planWithResults(t, map[string]string{"T1": "6"})

	resolved, err := ResolveArguments("{not json #T1}", plan)
	if err != nil {
		t.Fatalf("ResolveArguments failed: %v", err)
	}
	if resolved != "{not json 6}" {
		t.Errorf("got %q", resolved)
	}
}
