package skein

import (
	"strings"
	"testing"
)

func TestNewExecutionPlanRejectsDuplicateIDs(t *testing.T) {
	_, err := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a"},
		{ID: "T1", ToolName: "b"},
	})
	if !IsCode(err, ErrCodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should name the duplicate: %v", err)
	}
}

func TestNewExecutionPlanRejectsDanglingDependency(t *testing.T) {
	_, err := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a", DependsOn: []string{"T9"}},
	})
	if !IsCode(err, ErrCodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestNewExecutionPlanRejectsCycle(t *testing.T) {
	_, err := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a", DependsOn: []string{"T2"}},
		{ID: "T2", ToolName: "b", DependsOn: []string{"T1"}},
	})
	if !IsCode(err, ErrCodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error should mention the cycle: %v", err)
	}
}

func TestNewExecutionPlanRejectsEmptyID(t *testing.T) {
	_, err := NewExecutionPlan([]Task{{ToolName: "a"}})
	if !IsCode(err, ErrCodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestReadyTasksOrderAndProgression(t *testing.T) {
	plan, err := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a"},
		{ID: "T3", ToolName: "c"},
		{ID: "T2", ToolName: "b", DependsOn: []string{"T1"}},
	})
	if err != nil {
		t.Fatalf("NewExecutionPlan failed: %v", err)
	}

	ready := plan.ReadyTasks()
	if len(ready) != 2 || ready[0].ID != "T1" || ready[1].ID != "T3" {
		t.Fatalf("initial ready set should be [T1 T3] in emission order, got %v", readyIDs(ready))
	}

	// A running task must never be returned as ready.
	t1, _ := plan.GetTask("T1")
	t1.UpdateStatus(TaskStatusRunning, nil)
	for _, task := range plan.ReadyTasks() {
		if task.ID == "T1" {
			t.Fatal("running task returned as ready")
		}
		if task.ID == "T2" {
			t.Fatal("task with incomplete dependency returned as ready")
		}
	}

	if err := t1.SetResult("done"); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
	found := false
	for _, task := range plan.ReadyTasks() {
		if task.ID == "T2" {
			found = true
		}
	}
	if !found {
		t.Fatal("T2 should be ready after its dependency has a result")
	}
}

func readyIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestTaskResultSingleWrite(t *testing.T) {
	task := &Task{ID: "T1", ToolName: "a"}

	if _, done := task.Result(); done {
		t.Fatal("result must be absent before completion")
	}

	if err := task.SetResult("first"); err != nil {
		t.Fatalf("first SetResult failed: %v", err)
	}
	if task.GetStatus() != TaskStatusCompleted {
		t.Errorf("status = %s, want completed", task.GetStatus())
	}

	if err := task.SetResult("second"); err == nil {
		t.Fatal("second SetResult must be rejected")
	}
	if result, _ := task.Result(); result != "first" {
		t.Errorf("result mutated after completion: %q", result)
	}
}

func TestIsCompleteRequiresAllCompleted(t *testing.T) {
	plan, _ := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a"},
		{ID: "T2", ToolName: "b"},
	})

	if plan.IsComplete() {
		t.Fatal("new plan must not be complete")
	}

	t1, _ := plan.GetTask("T1")
	t1.SetResult("x")
	if plan.IsComplete() {
		t.Fatal("plan with a pending task must not be complete")
	}

	t2, _ := plan.GetTask("T2")
	t2.UpdateStatus(TaskStatusFailed, nil)
	if plan.IsComplete() {
		t.Fatal("plan with a failed task must not be complete")
	}

	t2.UpdateStatus(TaskStatusPending, nil)
	t2.SetResult("y")
	if !plan.IsComplete() {
		t.Fatal("plan with all tasks completed must be complete")
	}
}

func TestResultsSnapshot(t *testing.T) {
	plan, _ := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a"},
		{ID: "T2", ToolName: "b"},
	})
	t1, _ := plan.GetTask("T1")
	t1.SetResult("one")

	results := plan.Results()
	if len(results) != 1 || results["T1"] != "one" {
		t.Fatalf("results = %v", results)
	}
}

func TestDependentsAdjacency(t *testing.T) {
	plan, _ := NewExecutionPlan([]Task{
		{ID: "T1", ToolName: "a"},
		{ID: "T2", ToolName: "b", DependsOn: []string{"T1"}},
		{ID: "T3", ToolName: "c", DependsOn: []string{"T1"}},
	})

	deps := plan.Dependents["T1"]
	if len(deps) != 2 {
		t.Fatalf("T1 dependents = %v", deps)
	}
}
