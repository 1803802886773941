package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skeinworks/skein"
)

type mockGenerator struct {
	mu      sync.Mutex
	calls   []string
	respond func(prompt string) (string, error)
}

func (g *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, prompt)
	g.mu.Unlock()
	if g.respond != nil {
		return g.respond(prompt)
	}
	return "llm:" + prompt, nil
}

func (g *mockGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type mockRunner struct {
	mu      sync.Mutex
	calls   []string // "name|input"
	respond func(name, input string) (string, error)
}

func (r *mockRunner) Execute(ctx context.Context, name, input string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name+"|"+input)
	r.mu.Unlock()
	if r.respond != nil {
		return r.respond(name, input)
	}
	return "ran " + name, nil
}

func (r *mockRunner) Descriptions() string { return "" }
func (r *mockRunner) Names() []string      { return nil }

func (r *mockRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func mustPlan(t *testing.T, tasks []skein.Task) *skein.ExecutionPlan {
	t.Helper()
	plan, err := skein.NewExecutionPlan(tasks)
	if err != nil {
		t.Fatalf("NewExecutionPlan failed: %v", err)
	}
	return plan
}

func TestExecutePlanRunsEveryTaskExactlyOnce(t *testing.T) {
	// Diamond: T1 -> {T2, T3} -> T4.
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "echo", Arguments: "one"},
		{ID: "T2", ToolName: "echo", Arguments: "#T1 two", DependsOn: []string{"T1"}},
		{ID: "T3", ToolName: "echo", Arguments: "#T1 three", DependsOn: []string{"T1"}},
		{ID: "T4", ToolName: "echo", Arguments: "#T2 #T3", DependsOn: []string{"T2", "T3"}},
	})

	counts := make(map[string]int)
	var mu sync.Mutex
	runner := &mockRunner{respond: func(name, input string) (string, error) {
		mu.Lock()
		counts[input]++
		mu.Unlock()
		return "r(" + input + ")", nil
	}}

	e := NewDAGExecutor(&mockGenerator{}, runner)
	results, err := e.ExecutePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecutePlan failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if runner.callCount() != 4 {
		t.Errorf("expected 4 tool calls, got %d", runner.callCount())
	}
	mu.Lock()
	for input, n := range counts {
		if n != 1 {
			t.Errorf("input %q executed %d times, want 1", input, n)
		}
	}
	mu.Unlock()

	metrics := e.GetMetrics()
	if metrics.TasksSuccessful != 4 {
		t.Errorf("expected 4 successful tasks, got %d", metrics.TasksSuccessful)
	}
}

func TestDependencyOrderAndSubstitution(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: skein.ToolNameLLM, Arguments: "2*3"},
		{ID: "T2", ToolName: skein.ToolNameLLM, Arguments: "#T1 / 2", DependsOn: []string{"T1"}},
	})

	gen := &mockGenerator{respond: func(prompt string) (string, error) {
		if prompt == "2*3" {
			return "6", nil
		}
		return "3", nil
	}}

	e := NewDAGExecutor(gen, &mockRunner{})
	results, err := e.ExecutePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecutePlan failed: %v", err)
	}

	if results["T1"] != "6" || results["T2"] != "3" {
		t.Fatalf("unexpected results: %v", results)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", len(gen.calls))
	}
	if gen.calls[0] != "2*3" {
		t.Errorf("T1 must run first, got prompt %q", gen.calls[0])
	}
	if gen.calls[1] != "6 / 2" {
		t.Errorf("T2's prompt must contain T1's result verbatim, got %q", gen.calls[1])
	}
}

func TestUnvalidatedCycleReportsDeadlock(t *testing.T) {
	// A cyclic plan cannot pass NewExecutionPlan; a plan assembled without
	// validation must still terminate with a deadlock error, not spin.
	t1 := &skein.Task{ID: "T1", ToolName: "echo", DependsOn: []string{"T2"}}
	t2 := &skein.Task{ID: "T2", ToolName: "echo", DependsOn: []string{"T1"}}
	plan := &skein.ExecutionPlan{
		TaskMap: map[string]*skein.Task{"T1": t1, "T2": t2},
	}

	runner := &mockRunner{}
	e := NewDAGExecutor(&mockGenerator{}, runner, WithMaxIterations(5))

	done := make(chan error, 1)
	go func() {
		_, err := e.ExecutePlan(context.Background(), plan)
		done <- err
	}()

	select {
	case err := <-done:
		if !skein.IsCode(err, skein.ErrCodeDeadlock) {
			t.Fatalf("expected SCHEDULING_DEADLOCK, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not terminate on a cyclic plan")
	}

	if runner.callCount() != 0 {
		t.Errorf("no task in a cycle should execute, got %d calls", runner.callCount())
	}
}

func TestIterationCap(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "echo", Arguments: "a"},
		{ID: "T2", ToolName: "echo", Arguments: "b", DependsOn: []string{"T1"}},
		{ID: "T3", ToolName: "echo", Arguments: "c", DependsOn: []string{"T2"}},
	})

	e := NewDAGExecutor(&mockGenerator{}, &mockRunner{}, WithMaxIterations(2))
	_, err := e.ExecutePlan(context.Background(), plan)
	if !skein.IsCode(err, skein.ErrCodeDeadlock) {
		t.Fatalf("expected SCHEDULING_DEADLOCK from iteration cap, got %v", err)
	}
	if !strings.Contains(err.Error(), "iterations") {
		t.Errorf("error should name the iteration cap, got %v", err)
	}

	task, _ := plan.GetTask("T3")
	if task.GetStatus() != skein.TaskStatusCancelled {
		t.Errorf("remaining task should be cancelled, got %s", task.GetStatus())
	}
}

func TestTaskFailureFailsFast(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "boom", Arguments: "x"},
		{ID: "T2", ToolName: "echo", Arguments: "#T1", DependsOn: []string{"T1"}},
	})

	runner := &mockRunner{respond: func(name, input string) (string, error) {
		if name == "boom" {
			return "", errors.New("tool exploded")
		}
		return "ok", nil
	}}

	e := NewDAGExecutor(&mockGenerator{}, runner)
	results, err := e.ExecutePlan(context.Background(), plan)
	if !skein.IsCode(err, skein.ErrCodeTaskExecution) {
		t.Fatalf("expected TASK_EXECUTION_ERROR, got %v", err)
	}

	t1, _ := plan.GetTask("T1")
	if t1.GetStatus() != skein.TaskStatusFailed {
		t.Errorf("T1 status = %s, want failed", t1.GetStatus())
	}
	t2, _ := plan.GetTask("T2")
	if t2.GetStatus() != skein.TaskStatusCancelled {
		t.Errorf("T2 status = %s, want cancelled", t2.GetStatus())
	}
	if len(results) != 0 {
		t.Errorf("no results expected, got %v", results)
	}
	if runner.callCount() != 1 {
		t.Errorf("dependent task must not run after failure, got %d calls", runner.callCount())
	}
}

func TestToolNotFoundNotRetried(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "missing", Arguments: "x"},
	})

	runner := &mockRunner{respond: func(name, input string) (string, error) {
		return "", skein.NewToolNotFoundError("execution", name)
	}}

	e := NewDAGExecutor(&mockGenerator{}, runner, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := e.ExecutePlan(context.Background(), plan)
	if !skein.IsCode(err, skein.ErrCodeToolNotFound) {
		t.Fatalf("expected TOOL_NOT_FOUND, got %v", err)
	}
	if runner.callCount() != 1 {
		t.Errorf("unknown tools must not be retried, got %d calls", runner.callCount())
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "flaky", Arguments: "x"},
	})

	var attempts int
	var mu sync.Mutex
	runner := &mockRunner{respond: func(name, input string) (string, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return "", fmt.Errorf("transient failure %d", n)
		}
		return "recovered", nil
	}}

	e := NewDAGExecutor(&mockGenerator{}, runner, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	results, err := e.ExecutePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecutePlan failed: %v", err)
	}
	if results["T1"] != "recovered" {
		t.Errorf("unexpected result: %v", results)
	}
	if got := e.GetMetrics().TotalRetries; got != 1 {
		t.Errorf("TotalRetries = %d, want 1", got)
	}
}

func TestLLMTasksGoToGenerator(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: skein.ToolNameLLM, Arguments: "think about it"},
	})

	gen := &mockGenerator{}
	runner := &mockRunner{}
	e := NewDAGExecutor(gen, runner)
	if _, err := e.ExecutePlan(context.Background(), plan); err != nil {
		t.Fatalf("ExecutePlan failed: %v", err)
	}

	if gen.callCount() != 1 {
		t.Errorf("expected 1 generator call, got %d", gen.callCount())
	}
	if runner.callCount() != 0 {
		t.Errorf("LLM tasks must not reach the tool runner, got %d calls", runner.callCount())
	}
}

func TestCancelledContext(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "echo", Arguments: "x"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewDAGExecutor(&mockGenerator{}, &mockRunner{})
	_, err := e.ExecutePlan(ctx, plan)
	if !skein.IsCode(err, skein.ErrCodeCancelled) {
		t.Fatalf("expected EXECUTION_CANCELLED, got %v", err)
	}
}

func TestPerTaskTimeout(t *testing.T) {
	plan := mustPlan(t, []skein.Task{
		{ID: "T1", ToolName: "slow", Arguments: "x"},
	})

	runner := &mockRunner{respond: func(name, input string) (string, error) {
		return "", context.DeadlineExceeded
	}}

	e := NewDAGExecutor(&mockGenerator{}, runner, WithTaskTimeout(time.Millisecond))
	_, err := e.ExecutePlan(context.Background(), plan)
	if !skein.IsCode(err, skein.ErrCodeTaskExecution) {
		t.Fatalf("expected TASK_EXECUTION_ERROR, got %v", err)
	}
	if !skein.IsCode(err, skein.ErrCodeTimeout) {
		t.Errorf("timeout should be wrapped inside the task error, got %v", err)
	}
}
